package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shurlinet/p2psync/internal/tracker"
	"github.com/shurlinet/p2psync/internal/vfs"
)

func newTrackerServer(t *testing.T, peerAddrs ...string) *httptest.Server {
	t.Helper()
	peers := make([]tracker.PeerInfo, len(peerAddrs))
	for i, addr := range peerAddrs {
		peers[i] = tracker.PeerInfo{Addr: addr, LastSeen: 1234567890}
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tracker.PeersResponse{Peers: peers})
	}))
}

func newPeerServer(t *testing.T, trees map[string]vfs.LookupView) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		md5 := r.URL.Query().Get("md5")
		view, ok := trees[md5]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(view)
	}))
}

func TestPlanSingleFile(t *testing.T) {
	peerSrv := newPeerServer(t, map[string]vfs.LookupView{
		"test_file_md5": {Type: "File", Name: "test.txt", Digest: "test_file_md5", Size: 5},
	})
	defer peerSrv.Close()

	trackerSrv := newTrackerServer(t, peerSrv.URL)
	defer trackerSrv.Close()

	p := New([]string{trackerSrv.URL})
	actions, err := p.Plan(context.Background(), "test_file_md5")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	if actions[0].Kind != Download || actions[0].Path != "test.txt" || actions[0].Digest != "test_file_md5" {
		t.Fatalf("unexpected action: %+v", actions[0])
	}
}

func TestPlanDirectoryWithFiles(t *testing.T) {
	tree := vfs.LookupView{
		Type: "Dir",
		Name: "test_dir",
		Children: []vfs.LookupView{
			{Type: "File", Name: "file1.txt", Digest: "file1_md5", Size: 1},
			{Type: "File", Name: "file2.txt", Digest: "file2_md5", Size: 2},
		},
	}
	peerSrv := newPeerServer(t, map[string]vfs.LookupView{"test_dir_md5": tree})
	defer peerSrv.Close()
	trackerSrv := newTrackerServer(t, peerSrv.URL)
	defer trackerSrv.Close()

	p := New([]string{trackerSrv.URL})
	actions, err := p.Plan(context.Background(), "test_dir_md5")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("len(actions) = %d, want 3", len(actions))
	}
	if actions[0].Kind != MakeDir || actions[0].Path != "test_dir" {
		t.Fatalf("expected first action to be MakeDir(test_dir), got %+v", actions[0])
	}
	for _, a := range actions[1:] {
		if a.Kind != Download {
			t.Fatalf("expected Download action, got %+v", a)
		}
	}
}

func TestPlanActionPeerRoundRobin(t *testing.T) {
	tree := vfs.LookupView{
		Type: "Dir",
		Name: "test_dir",
		Children: []vfs.LookupView{
			{Type: "File", Name: "file1.txt", Digest: "file1_md5", Size: 1},
			{Type: "File", Name: "file2.txt", Digest: "file2_md5", Size: 2},
		},
	}
	peer1 := newPeerServer(t, map[string]vfs.LookupView{"test_dir_md5": tree})
	defer peer1.Close()
	peer2 := newPeerServer(t, map[string]vfs.LookupView{"test_dir_md5": tree})
	defer peer2.Close()
	trackerSrv := newTrackerServer(t, peer1.URL, peer2.URL)
	defer trackerSrv.Close()

	p := New([]string{trackerSrv.URL})
	actions, err := p.Plan(context.Background(), "test_dir_md5")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var ids []int
	for _, a := range actions {
		if a.Kind == Download {
			ids = append(ids, a.PeerID)
		}
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("expected round-robin peer_id [0 1], got %v", ids)
	}
}

func TestPlanEmptyTrackerURLs(t *testing.T) {
	p := New(nil)
	_, err := p.Plan(context.Background(), "anything")
	if err != ErrNoTrackers {
		t.Fatalf("err = %v, want ErrNoTrackers", err)
	}
}

func TestPlanTreeMismatchFails(t *testing.T) {
	peer1 := newPeerServer(t, map[string]vfs.LookupView{
		"digest": {Type: "File", Name: "a.txt", Digest: "digest", Size: 1},
	})
	defer peer1.Close()
	peer2 := newPeerServer(t, map[string]vfs.LookupView{
		"digest": {Type: "File", Name: "b.txt", Digest: "digest", Size: 1},
	})
	defer peer2.Close()
	trackerSrv := newTrackerServer(t, peer1.URL, peer2.URL)
	defer trackerSrv.Close()

	p := New([]string{trackerSrv.URL})
	_, err := p.Plan(context.Background(), "digest")
	if err == nil {
		t.Fatalf("expected tree mismatch error")
	}
}

func TestPlanNoPeersAvailable(t *testing.T) {
	trackerSrv := newTrackerServer(t)
	defer trackerSrv.Close()

	p := New([]string{trackerSrv.URL})
	_, err := p.Plan(context.Background(), "anything")
	if err != ErrNoTrackers {
		t.Fatalf("err = %v, want ErrNoTrackers (mirrors original planner's exact behavior when no peers are discovered)", err)
	}
}

func TestPlanNestedDirectory(t *testing.T) {
	tree := vfs.LookupView{
		Type: "Dir",
		Name: "parent",
		Children: []vfs.LookupView{
			{
				Type: "Dir",
				Name: "subdir",
				Children: []vfs.LookupView{
					{Type: "File", Name: "nested.txt", Digest: "nested_md5", Size: 1},
				},
			},
			{Type: "File", Name: "root_file.txt", Digest: "root_file_md5", Size: 2},
		},
	}
	peerSrv := newPeerServer(t, map[string]vfs.LookupView{"nested_dir_md5": tree})
	defer peerSrv.Close()
	trackerSrv := newTrackerServer(t, peerSrv.URL)
	defer trackerSrv.Close()

	p := New([]string{trackerSrv.URL})
	actions, err := p.Plan(context.Background(), "nested_dir_md5")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var dirs, downloads int
	for _, a := range actions {
		if a.Kind == MakeDir {
			dirs++
		} else {
			downloads++
		}
	}
	if dirs != 2 || downloads != 2 {
		t.Fatalf("dirs=%d downloads=%d, want 2 and 2", dirs, downloads)
	}
}
