// Package vfs builds a content-addressed view over a set of host paths:
// a recursive digest of a directory tree, sealed once, then queryable
// by digest. It is the serving peer's core data structure.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shurlinet/p2psync/internal/digest"
)

var (
	// ErrAlreadySealed is returned by Seal when called a second time.
	ErrAlreadySealed = errors.New("already sealed")
	// ErrNotSealed is returned by FilePath and Snapshot before Seal
	// completes. (Lookup reports an unsealed VFS as a miss.)
	ErrNotSealed = errors.New("vfs is not sealed")
	// ErrNotFound is returned by FilePath for an unknown digest.
	ErrNotFound = errors.New("not found")
	// ErrIsDirectory is returned by FilePath when the digest names a directory.
	ErrIsDirectory = errors.New("is directory")
)

// slowFileThreshold is the read duration above which Seal logs a
// warning for a single file's digest pass.
const slowFileThreshold = 100 * time.Millisecond

// Node is the internal VFS record for a single file or directory,
// keyed by its insertion (node-index) order.
type Node struct {
	Path     string `cbor:"path" json:"path"`
	Digest   string `cbor:"digest" json:"digest"`
	IsDir    bool   `cbor:"is_dir" json:"is_dir"`
	Children []int  `cbor:"children,omitempty" json:"children,omitempty"` // directories only
	Size     int64  `cbor:"size,omitempty" json:"size,omitempty"`         // files only
}

// LookupView is the JSON-facing projection of a node returned to
// clients. It never exposes host paths. Equality is structural and
// value-based across every field including child order.
type LookupView struct {
	Type     string       `json:"type"` // "Dir" or "File"
	Name     string       `json:"name"`
	Children []LookupView `json:"children,omitempty"`
	Digest   string       `json:"md5,omitempty"`
	Size     uint64       `json:"size,omitempty"`
}

// VFS is an ordered collection of Nodes plus a digest-to-index map. It
// has two lifecycle phases: unsealed (nodes being added, digest map
// empty) and sealed (digests populated, map filled, immutable
// thereafter).
type VFS struct {
	nodes        []Node
	digestToNode map[string]int
	roots        []int
	sealed       bool
}

// New returns an empty, unsealed VFS.
func New() *VFS {
	return &VFS{digestToNode: make(map[string]int)}
}

// Sealed reports whether Seal has completed successfully.
func (v *VFS) Sealed() bool {
	return v.sealed
}

// RootPaths returns the host paths passed directly to Add, in call
// order (not every node's path — only the top-level roots).
func (v *VFS) RootPaths() []string {
	paths := make([]string, len(v.roots))
	for i, idx := range v.roots {
		paths[i] = v.nodes[idx].Path
	}
	return paths
}

// resolveOneLevelSymlink resolves path exactly one level if it is a
// symlink; it never follows a chain of symlinks transitively.
func resolveOneLevelSymlink(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return target, nil
}

// Add resolves path (following a single level of symlink), then
// appends a Directory or File node for it, recursing into directory
// entries post-order (children are added, and receive lower node
// indices, before their parent directory node). It fails if the path
// is neither a directory nor a regular file. Add is only valid before
// Seal.
func (v *VFS) Add(path string) (int, error) {
	idx, err := v.add(path)
	if err != nil {
		return 0, err
	}
	v.roots = append(v.roots, idx)
	return idx, nil
}

func (v *VFS) add(path string) (int, error) {
	if v.sealed {
		return 0, fmt.Errorf("add: %w", ErrAlreadySealed)
	}
	resolved, err := resolveOneLevelSymlink(path)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return 0, err
	}

	switch {
	case info.IsDir():
		return v.addDir(resolved)
	case info.Mode().IsRegular():
		return v.addFile(resolved)
	default:
		return 0, fmt.Errorf("add %s: neither a directory nor a regular file", resolved)
	}
}

func (v *VFS) addDir(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}

	children := make([]int, 0, len(entries))
	for _, entry := range entries {
		childIdx, err := v.add(filepath.Join(path, entry.Name()))
		if err != nil {
			return 0, err
		}
		children = append(children, childIdx)
	}

	v.nodes = append(v.nodes, Node{Path: path, IsDir: true, Children: children})
	return len(v.nodes) - 1, nil
}

func (v *VFS) addFile(path string) (int, error) {
	v.nodes = append(v.nodes, Node{Path: path, IsDir: false, Size: 0})
	return len(v.nodes) - 1, nil
}

// Seal transitions the VFS from unsealed to sealed. It fails with
// ErrAlreadySealed if called twice. File digests are computed in
// parallel (bounded by runtime.NumCPU()); directory digests are computed
// afterward in a single serial pass over node-index order, since Add's
// post-order insertion guarantees every directory's children were
// inserted — and therefore digested — before it.
func (v *VFS) Seal() error {
	if len(v.digestToNode) != 0 || v.sealed {
		return ErrAlreadySealed
	}

	if err := v.sealFileDigests(); err != nil {
		return err
	}
	v.sealDirectoryDigests()

	for i := range v.nodes {
		v.digestToNode[v.nodes[i].Digest] = i
	}
	v.sealed = true
	return nil
}

func (v *VFS) sealFileDigests() error {
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	for i := range v.nodes {
		if v.nodes[i].IsDir {
			continue
		}
		i := i
		g.Go(func() error {
			return v.sealOneFile(i)
		})
	}
	return g.Wait()
}

func (v *VFS) sealOneFile(i int) error {
	path := v.nodes[i].Path

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	start := time.Now()
	sum, _, err := digest.Stream(f)
	if err != nil {
		return err
	}
	if elapsed := time.Since(start); elapsed > slowFileThreshold {
		slog.Warn("slow file digest", "path", path, "elapsed", elapsed)
	}

	v.nodes[i].Digest = sum
	v.nodes[i].Size = info.Size()
	return nil
}

func (v *VFS) sealDirectoryDigests() {
	for i := range v.nodes {
		if !v.nodes[i].IsDir {
			continue
		}
		children := v.nodes[i].Children
		sort.Slice(children, func(a, b int) bool {
			return v.nodes[children[a]].Digest < v.nodes[children[b]].Digest
		})

		h := digest.New()
		for _, c := range children {
			h.Write([]byte(v.nodes[c].Digest))
		}
		v.nodes[i].Digest = h.Sum()
	}
}

// Lookup resolves digest to a node and materializes a LookupView by
// recursively translating children. Sealed-only.
func (v *VFS) Lookup(dig string) (*LookupView, bool) {
	if !v.sealed {
		return nil, false
	}
	idx, ok := v.digestToNode[dig]
	if !ok {
		return nil, false
	}
	view := v.toLookupView(idx)
	return &view, true
}

func (v *VFS) toLookupView(idx int) LookupView {
	node := v.nodes[idx]
	name := filepath.Base(node.Path)

	if node.IsDir {
		children := make([]LookupView, len(node.Children))
		for i, c := range node.Children {
			children[i] = v.toLookupView(c)
		}
		return LookupView{Type: "Dir", Name: name, Children: children}
	}
	return LookupView{Type: "File", Name: name, Digest: node.Digest, Size: uint64(node.Size)}
}

// FilePath returns the host path for a file node. Sealed-only.
func (v *VFS) FilePath(dig string) (string, error) {
	if !v.sealed {
		return "", ErrNotSealed
	}
	idx, ok := v.digestToNode[dig]
	if !ok {
		return "", ErrNotFound
	}
	node := v.nodes[idx]
	if node.IsDir {
		return "", ErrIsDirectory
	}
	return node.Path, nil
}

// DumpDigests writes one line per node, in node-index order, of the
// form "{dir|file} <path>: digest <hex>".
func (v *VFS) DumpDigests(w io.Writer) error {
	for _, n := range v.nodes {
		kind := "file"
		if n.IsDir {
			kind = "dir"
		}
		if _, err := fmt.Fprintf(w, "%s %s: digest %s\n", kind, n.Path, n.Digest); err != nil {
			return err
		}
	}
	return nil
}
