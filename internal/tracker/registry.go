package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// cleanupInterval is how often the registry sweeps for stale peers.
const cleanupInterval = 30 * time.Second

// peerTimeout is how long a peer may go unseen before it is dropped.
const peerTimeout = 300 * time.Second

// Registry is the tracker's in-memory peer table, keyed by address.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]PeerInfo
	now   func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]PeerInfo),
		now:   time.Now,
	}
}

// Announce records or refreshes a peer's last-seen time.
func (r *Registry) Announce(addr string) PeerInfo {
	peer := PeerInfo{Addr: addr, LastSeen: r.now().Unix()}
	r.mu.Lock()
	r.peers[addr] = peer
	r.mu.Unlock()
	return peer
}

// Peers returns every currently known peer. Order is unspecified.
func (r *Registry) Peers() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len reports how many peers are currently known.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Cleanup drops any peer whose last-seen time is older than
// peerTimeout and returns how many were dropped.
func (r *Registry) Cleanup() int {
	cutoff := r.now().Unix() - int64(peerTimeout.Seconds())
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for addr, p := range r.peers {
		if p.LastSeen < cutoff {
			delete(r.peers, addr)
			dropped++
		}
	}
	return dropped
}

// RunCleanup runs Cleanup every cleanupInterval until ctx is
// cancelled. It is meant to be run in its own goroutine.
func (r *Registry) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Cleanup(); n > 0 {
				slog.Debug("tracker cleanup dropped stale peers", "count", n)
			}
		}
	}
}
