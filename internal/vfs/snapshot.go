package vfs

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is the CBOR-encodable, on-disk form of a sealed VFS. A
// serving peer builds a VFS by walking the host filesystem once, then
// persists the Snapshot so subsequent restarts skip the walk and the
// digest sweep entirely.
type Snapshot struct {
	Nodes []Node   `cbor:"nodes"`
	Roots []int    `cbor:"roots"`
	Paths []string `cbor:"paths"`
}

// Snapshot returns the on-disk form of a sealed VFS. Sealed-only.
func (v *VFS) Snapshot() (Snapshot, error) {
	if !v.sealed {
		return Snapshot{}, ErrNotSealed
	}
	nodes := make([]Node, len(v.nodes))
	copy(nodes, v.nodes)
	roots := make([]int, len(v.roots))
	copy(roots, v.roots)
	return Snapshot{Nodes: nodes, Roots: roots, Paths: v.RootPaths()}, nil
}

// EncodeSnapshot CBOR-encodes the snapshot in one call. It does not
// seal the VFS; on an unsealed VFS it fails with ErrNotSealed.
func (v *VFS) EncodeSnapshot() ([]byte, error) {
	snap, err := v.Snapshot()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(snap)
}

// Load rebuilds a sealed VFS from a previously encoded Snapshot. The
// resulting VFS is immediately sealed: Add will fail, Lookup and
// FilePath work immediately.
func Load(data []byte) (*VFS, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	v := &VFS{
		nodes:        snap.Nodes,
		digestToNode: make(map[string]int, len(snap.Nodes)),
		roots:        snap.Roots,
		sealed:       true,
	}
	for i, n := range v.nodes {
		v.digestToNode[n.Digest] = i
	}
	return v, nil
}
