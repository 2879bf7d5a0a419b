package services

import (
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// DefaultLinkTTL is how long a signed file link stays valid
const DefaultLinkTTL = 24 * time.Hour

// FileLinker builds download URLs of the form {base}/files/{session}/{filename}.
// With a signer the URL carries a ?token= query parameter.
type FileLinker struct {
	BaseURL string
	Signer  driven.LinkSigner // Optional
	TTL     time.Duration
}

// URL returns the download link for a stored file. Signing failures fall
// back to the unsigned link.
func (l FileLinker) URL(sessionID, filename string) string {
	u := strings.TrimRight(l.BaseURL, "/") + "/files/" + url.PathEscape(sessionID) + "/" + url.PathEscape(filename)
	if l.Signer == nil {
		return u
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	token, err := l.Signer.Sign(sessionID, filename, ttl)
	if err != nil {
		return u
	}
	return u + "?token=" + url.QueryEscape(token)
}
