package domain

import (
	"fmt"
	"strings"
)

// DefaultSession is the session name clients send when they want the
// unscoped view across all sessions
const DefaultSession = "default"

// NormalizeSession maps the default session and blank input to "" (unscoped)
func NormalizeSession(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == DefaultSession {
		return ""
	}
	return sessionID
}

// ValidateSessionID rejects session ids that cannot be used as a directory
// name under the data dir
func ValidateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if len(sessionID) > 128 {
		return fmt.Errorf("%w: session id too long", ErrInvalidInput)
	}
	if sessionID == "." || sessionID == ".." || strings.ContainsAny(sessionID, `/\`) || strings.ContainsRune(sessionID, 0) {
		return fmt.Errorf("%w: session id %q is not a valid name", ErrInvalidInput, sessionID)
	}
	return nil
}
