package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a typed HTTP client for a single tracker.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the tracker at baseURL (e.g.
// "http://tracker.example:9000"), bounded by a request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Announce POSTs an announce request for selfAddr.
func (c *Client) Announce(ctx context.Context, selfAddr string) error {
	body, err := json.Marshal(AnnounceRequest{Addr: selfAddr})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/announce", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("announce to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("announce to %s: status %s", c.baseURL, resp.Status)
	}
	return nil
}

// Peers fetches the tracker's current peer list.
func (c *Client) Peers(ctx context.Context) ([]PeerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/peers", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peers from %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peers from %s: status %s", c.baseURL, resp.Status)
	}

	var out PeersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode peers from %s: %w", c.baseURL, err)
	}
	return out.Peers, nil
}
