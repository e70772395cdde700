package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"reflect"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shurlinet/p2psync/internal/tracker"
	"github.com/shurlinet/p2psync/internal/vfs"
	"github.com/shurlinet/p2psync/pkg/syncutil"
)

// requestTimeout bounds every discovery and tree-resolution HTTP call.
const requestTimeout = 10 * time.Second

// Planner discovers peers via a fixed set of trackers and produces an
// action plan for a root digest.
type Planner struct {
	trackerURLs []string
}

// New returns a Planner that discovers peers through trackerURLs.
func New(trackerURLs []string) *Planner {
	return &Planner{trackerURLs: trackerURLs}
}

// Plan discovers peers, agrees on the tree rooted at digest across
// every peer that answered, and returns the resulting action plan.
func (p *Planner) Plan(ctx context.Context, digest string) ([]Action, error) {
	peers, err := p.discoverPeers(ctx)
	if err != nil {
		return nil, err
	}

	tree, agreeingPeers, err := p.resolveTree(ctx, peers, digest)
	if err != nil {
		return nil, err
	}

	return emitActions(tree, agreeingPeers), nil
}

type discoverResult struct {
	peers []tracker.PeerInfo
	err   error
}

// discoverPeers queries every tracker URL in parallel and returns the
// de-duplicated union of every peer address reported. A tracker list
// that produces no addresses at all — whether because it is empty or
// because every tracker responded with zero peers and no transport
// error occurred — is reported as ErrNoTrackers, mirroring the
// original planner's behavior exactly.
func (p *Planner) discoverPeers(ctx context.Context) ([]string, error) {
	results := make([]discoverResult, len(p.trackerURLs))

	g := new(errgroup.Group)
	g.SetLimit(max(1, runtime.NumCPU()))
	for i, url := range p.trackerURLs {
		i, url := i, url
		g.Go(func() error {
			client := tracker.NewClient(url, requestTimeout)
			peers, err := client.Peers(ctx)
			results[i] = discoverResult{peers: peers, err: err}
			return nil
		})
	}
	g.Wait()

	seen := make(map[string]struct{})
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		for _, peer := range r.peers {
			seen[peer.Addr] = struct{}{}
		}
	}

	if len(seen) == 0 {
		if len(errs) == 0 {
			return nil, ErrNoTrackers
		}
		return nil, syncutil.NewMultiError(errs)
	}

	peers := make([]string, 0, len(seen))
	for addr := range seen {
		peers = append(peers, addr)
	}
	return peers, nil
}

type queryResult struct {
	peer string
	view *vfs.LookupView
	err  error
}

// resolveTree queries every candidate peer's /query endpoint for
// digest in parallel. The last peer to succeed (in discovery order)
// becomes the reference tree; every other successful response must be
// structurally identical to it or resolveTree fails immediately with a
// mismatch error. The returned peer list is every peer whose tree
// agreed, ordered from the reference peer backward — this mirrors the
// original stack-pop-based comparison order exactly.
func (p *Planner) resolveTree(ctx context.Context, peers []string, digest string) (*vfs.LookupView, []string, error) {
	results := make([]queryResult, len(peers))

	g := new(errgroup.Group)
	g.SetLimit(max(1, runtime.NumCPU()))
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			view, err := queryPeerTree(ctx, peer, digest)
			results[i] = queryResult{peer: peer, view: view, err: err}
			return nil
		})
	}
	g.Wait()

	var successes []queryResult
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		successes = append(successes, r)
	}

	if len(successes) == 0 {
		if len(errs) == 0 {
			return nil, nil, ErrNoPeersFound
		}
		return nil, nil, syncutil.NewMultiError(errs)
	}

	reference := successes[len(successes)-1]
	agreeingPeers := []string{reference.peer}
	for i := len(successes) - 2; i >= 0; i-- {
		candidate := successes[i]
		if !reflect.DeepEqual(candidate.view, reference.view) {
			return nil, nil, fmt.Errorf("tree mismatch: peer %s disagrees with peer %s", candidate.peer, reference.peer)
		}
		agreeingPeers = append(agreeingPeers, candidate.peer)
	}

	return reference.view, agreeingPeers, nil
}

func queryPeerTree(ctx context.Context, peer, digest string) (*vfs.LookupView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/query?md5="+digest, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", peer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: status %s", peer, resp.Status)
	}

	var view vfs.LookupView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode tree from %s: %w", peer, err)
	}
	return &view, nil
}

// emitActions walks tree breadth-first, emitting one MakeDir per
// directory and one Download per file, assigning download actions a
// round-robin starting peer index. peers is attached, unmodified, to
// every Download action so the executor shares a single list.
func emitActions(tree *vfs.LookupView, peers []string) []Action {
	type frontierItem struct {
		prefix string
		node   *vfs.LookupView
	}

	queue := []frontierItem{{prefix: ".", node: tree}}
	var result []Action
	nextID := 0
	nPeers := len(peers)

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		curPath := filepath.Join(item.prefix, item.node.Name)

		if item.node.Type == "Dir" {
			result = append(result, Action{Kind: MakeDir, Path: curPath})
			for i := range item.node.Children {
				queue = append(queue, frontierItem{prefix: curPath, node: &item.node.Children[i]})
			}
			continue
		}

		result = append(result, Action{
			Kind:   Download,
			Path:   curPath,
			Peers:  peers,
			PeerID: nextID,
			Digest: item.node.Digest,
			Size:   item.node.Size,
		})
		if nPeers > 0 {
			nextID = (nextID + 1) % nPeers
		}
	}
	return result
}
