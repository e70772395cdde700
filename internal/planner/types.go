// Package planner discovers peers for a root digest, agrees on a
// single tree shape across them, and emits an ordered action plan for
// the executor to carry out.
package planner

import "errors"

var (
	// ErrNoTrackers is returned when peer discovery yields no peer
	// addresses and no tracker call failed: either there are no tracker
	// URLs at all, or every tracker reported zero peers.
	ErrNoTrackers = errors.New("tracker_urls is empty")
	// ErrNoPeersFound is returned by tree resolution when it has no
	// peers to query. When every queried peer fails, the failures are
	// returned as a MultiError instead.
	ErrNoPeersFound = errors.New("no peers found")
)

// Action is one step of a download plan: create a directory, or
// download a file from one of a shared set of peers.
type Action struct {
	Kind ActionKind

	// Path is the action's destination, relative to the download root.
	Path string

	// Download-only fields.
	Peers  []string // immutable once planning completes; shared across every Download action
	PeerID int      // starting rotation index into Peers
	Digest string
	Size   uint64
}

// ActionKind distinguishes the two Action variants.
type ActionKind int

const (
	// MakeDir creates Path as a directory.
	MakeDir ActionKind = iota
	// Download fetches the file named Digest into Path.
	Download
)
