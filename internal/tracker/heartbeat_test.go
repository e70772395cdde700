package tracker

import (
	"testing"
	"time"
)

func TestHeartBeaterAnnouncesPeriodically(t *testing.T) {
	s, baseURL := startTestServer(t)

	hb := NewHeartBeater("http://self:9002", []string{baseURL}, 20*time.Millisecond)
	defer hb.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.registry.Len() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("heartbeat never announced to tracker; registry has %d peers", s.registry.Len())
}

func TestHeartBeaterStopEndsAllLoops(t *testing.T) {
	_, baseURL := startTestServer(t)
	hb := NewHeartBeater("http://self:9003", []string{baseURL}, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		hb.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}
}
