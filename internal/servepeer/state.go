// Package servepeer implements the serving peer's HTTP endpoints:
// GET /query (tree lookup by digest) and GET /download (file content
// by digest) over a sealed virtual filesystem.
package servepeer

import (
	"fmt"
	"io"
	"os"

	"github.com/shurlinet/p2psync/internal/vfs"
)

// State holds the sealed VFS a serving peer exposes. It is built once
// at startup (or restored from a snapshot) and never mutated
// afterward, so no locking is needed around reads.
type State struct {
	vfs *vfs.VFS
}

// NewState builds a VFS over paths, seals it, and returns the
// resulting State.
func NewState(paths []string) (*State, error) {
	v := vfs.New()
	for _, p := range paths {
		if _, err := v.Add(p); err != nil {
			return nil, fmt.Errorf("add %s: %w", p, err)
		}
	}
	if err := v.Seal(); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return &State{vfs: v}, nil
}

// LoadState restores a State from a previously encoded CBOR snapshot.
func LoadState(data []byte) (*State, error) {
	v, err := vfs.Load(data)
	if err != nil {
		return nil, err
	}
	return &State{vfs: v}, nil
}

// DumpDigests writes the VFS's node digests to w, one line per node.
func (s *State) DumpDigests(w io.Writer) error {
	return s.vfs.DumpDigests(w)
}

// DumpSnapshot writes the CBOR-encoded snapshot to path.
func (s *State) DumpSnapshot(path string) error {
	blob, err := s.vfs.EncodeSnapshot()
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}

// Lookup resolves digest to a LookupView.
func (s *State) Lookup(digest string) (*vfs.LookupView, bool) {
	return s.vfs.Lookup(digest)
}

// FilePath resolves digest to a host file path.
func (s *State) FilePath(digest string) (string, error) {
	return s.vfs.FilePath(digest)
}
