// Package validate checks user- and wire-supplied strings (content
// digests, peer/tracker URLs) against the formats p2psync requires,
// before they reach a lookup, an HTTP client, or a filesystem call.
package validate

import "errors"

var (
	// ErrInvalidDigest is returned when a string is not a 32-character
	// lowercase hexadecimal content digest.
	ErrInvalidDigest = errors.New("invalid digest")

	// ErrInvalidPeerURL is returned when a string is not an absolute
	// http(s) base URL usable as a peer or tracker address.
	ErrInvalidPeerURL = errors.New("invalid peer URL")
)
