package driven

import "time"

// LinkSigner issues and verifies signed file download links
type LinkSigner interface {
	// Sign returns a token granting access to one file until ttl elapses
	Sign(sessionID, filename string, ttl time.Duration) (string, error)

	// Verify checks a token for the given file.
	// Returns domain.ErrTokenExpired or domain.ErrTokenInvalid.
	Verify(token, sessionID, filename string) error
}
