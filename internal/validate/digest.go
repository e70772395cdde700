package validate

import (
	"fmt"
	"regexp"
)

// digestRe matches a 32-character lowercase hexadecimal content digest.
var digestRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Digest checks that s is a well-formed content digest.
func Digest(s string) error {
	if !digestRe.MatchString(s) {
		return fmt.Errorf("%w: %q must be 32 lowercase hex characters", ErrInvalidDigest, s)
	}
	return nil
}
