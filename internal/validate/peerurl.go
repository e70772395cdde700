package validate

import (
	"fmt"
	"net/url"
)

// PeerURL checks that s is an absolute http(s) URL with a host,
// suitable as a peer or tracker base address.
func PeerURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPeerURL, s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q must use http or https", ErrInvalidPeerURL, s)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q is missing a host", ErrInvalidPeerURL, s)
	}
	return nil
}
