package servepeer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shurlinet/p2psync/internal/digest"
)

func decodeErrorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" {
		t.Fatalf("error body has empty \"error\" field")
	}
	return body.Error
}

func startTestServer(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello servepeer"), 0o644); err != nil {
		t.Fatal(err)
	}

	state, err := NewState([]string{root})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	s := NewServer(state, nil)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return "http://" + s.Addr().String()
}

func TestQueryReturnsLookupView(t *testing.T) {
	baseURL := startTestServer(t)
	d := digest.Of([]byte("hello servepeer"))

	resp, err := http.Get(baseURL + "/query?md5=" + d)
	if err != nil {
		t.Fatalf("GET /query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestQueryMissingDigestIsBadRequest(t *testing.T) {
	baseURL := startTestServer(t)

	resp, err := http.Get(baseURL + "/query")
	if err != nil {
		t.Fatalf("GET /query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	decodeErrorBody(t, resp)
}

func TestQueryUnknownDigestIsNotFound(t *testing.T) {
	baseURL := startTestServer(t)

	resp, err := http.Get(baseURL + "/query?md5=00000000000000000000000000000000")
	if err != nil {
		t.Fatalf("GET /query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	decodeErrorBody(t, resp)
}

func TestDownloadStreamsFileContent(t *testing.T) {
	baseURL := startTestServer(t)
	d := digest.Of([]byte("hello servepeer"))

	resp, err := http.Get(baseURL + "/download?md5=" + d)
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello servepeer" {
		t.Fatalf("body = %q, want %q", body, "hello servepeer")
	}
}

func TestDownloadDirectoryDigestIsBadRequest(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello servepeer"), 0o644); err != nil {
		t.Fatal(err)
	}

	state, err := NewState([]string{root})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	var buf bytes.Buffer
	if err := state.DumpDigests(&buf); err != nil {
		t.Fatalf("DumpDigests: %v", err)
	}

	var rootDigest string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "dir ") {
			parts := strings.Split(line, "digest ")
			rootDigest = parts[len(parts)-1]
		}
	}
	if rootDigest == "" {
		t.Fatalf("no directory digest found in dump:\n%s", buf.String())
	}

	s := NewServer(state, nil)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()
	baseURL := "http://" + s.Addr().String()

	resp, err := http.Get(baseURL + "/download?md5=" + rootDigest)
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	decodeErrorBody(t, resp)
}
