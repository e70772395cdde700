// Package executor runs a planner.Action plan: bounded-concurrency
// dispatch, per-file multi-peer failover, digest verification, and
// shared progress accounting.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/shurlinet/p2psync/internal/digest"
	"github.com/shurlinet/p2psync/internal/planner"
	"github.com/shurlinet/p2psync/pkg/syncutil"
)

// writeBufferSize is the threshold at which a download's write buffer
// is flushed to disk.
const writeBufferSize = 4 * 1024 * 1024

// readChunkSize is the size of each read from a peer's response body.
const readChunkSize = 32 * 1024

// TotalSize sums the byte size of every Download action, for sizing a
// Progress before Execute starts.
func TotalSize(actions []planner.Action) int64 {
	var total int64
	for _, a := range actions {
		if a.Kind == planner.Download {
			total += int64(a.Size)
		}
	}
	return total
}

// Execute runs every action in actions, advancing progress as bytes
// are downloaded (progress may be nil if the caller doesn't need
// live accounting). It maintains a FIFO of in-flight tasks bounded by
// concurrency via a pkg/syncutil.Spawner: once more than concurrency
// tasks are outstanding, it waits for the oldest before dispatching
// the next. The first task failure stops further dispatch but every
// already-dispatched task is still awaited before Execute returns, so
// no task outlives the call. All failures are aggregated into a
// single multi-error.
func Execute(ctx context.Context, actions []planner.Action, concurrency int, progress *Progress) error {
	if progress == nil {
		progress = NewProgress(TotalSize(actions))
	}
	spawner := syncutil.NewSpawner(int64(concurrency))

	var queue []*syncutil.Task[struct{}]
	var errs []error
	stopDispatch := false

	for _, action := range actions {
		if stopDispatch {
			break
		}
		action := action

		task, err := syncutil.Spawn(ctx, spawner, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, executeAction(ctx, action, progress)
		})
		if err != nil {
			errs = append(errs, err)
			break
		}
		queue = append(queue, task)

		if len(queue) > concurrency {
			oldest := queue[0]
			queue = queue[1:]
			if _, err := oldest.Wait(context.Background()); err != nil {
				errs = append(errs, err)
				stopDispatch = true
			}
		}
	}

	for _, task := range queue {
		if _, err := task.Wait(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	return syncutil.NewMultiError(errs).ErrOrNil()
}

func executeAction(ctx context.Context, action planner.Action, progress *Progress) error {
	switch action.Kind {
	case planner.MakeDir:
		return os.MkdirAll(action.Path, 0o755)
	case planner.Download:
		return executeDownload(ctx, action, progress)
	default:
		return fmt.Errorf("unknown action kind %d", action.Kind)
	}
}

func executeDownload(ctx context.Context, action planner.Action, progress *Progress) error {
	if parent := filepath.Dir(action.Path); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return err
		}
	}

	peers := action.Peers // immutable snapshot; no lock needed
	if len(peers) == 0 {
		return fmt.Errorf("download %s: no peers available", action.Path)
	}

	var errs []error
	for _, url := range downloadURLs(peers, action.PeerID, action.Digest) {
		if err := downloadAndCheck(ctx, url, action.Digest, action.Path, progress); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("download %s: all peer attempts failed: %w", action.Path, syncutil.NewMultiError(errs))
}

// downloadURLs builds the peer rotation for a file: starting at
// peerID, each of the N peers is tried exactly once.
func downloadURLs(peers []string, peerID int, digestStr string) []string {
	n := len(peers)
	urls := make([]string, n)
	for i := 0; i < n; i++ {
		offset := (peerID + i) % n
		urls[i] = peers[offset] + "/download?md5=" + digestStr
	}
	return urls
}

// downloadAndCheck performs one download attempt: stream the
// response body to path while feeding a digest accumulator, flushing
// the write buffer every writeBufferSize bytes, then compare the
// computed digest to wantDigest.
func downloadAndCheck(ctx context.Context, url, wantDigest, path string, progress *Progress) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := digest.New()
	bw := bufio.NewWriterSize(f, writeBufferSize)
	buf := make([]byte, readChunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			if _, err := bw.Write(buf[:n]); err != nil {
				return err
			}
			progress.Add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	if got := h.Sum(); got != wantDigest {
		return fmt.Errorf("digest mismatch: got %s, want %s", got, wantDigest)
	}
	return nil
}
