// Package auth signs file download links with HMAC JWTs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure LinkSigner implements driven.LinkSigner
var _ driven.LinkSigner = (*LinkSigner)(nil)

const issuer = "sercha-rag"

// minSecretLength is the shortest accepted HMAC secret
const minSecretLength = 16

// linkClaims binds a token to exactly one file
type linkClaims struct {
	SessionID string `json:"sid"`
	Filename  string `json:"file"`
	jwt.RegisteredClaims
}

// LinkSigner issues HS256 tokens scoped to a session and file name
type LinkSigner struct {
	secret []byte
	now    func() time.Time
}

// NewLinkSigner fails with domain.ErrConfiguration on a short secret
func NewLinkSigner(secret string) (*LinkSigner, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: link secret must be at least %d bytes", domain.ErrConfiguration, minSecretLength)
	}
	return &LinkSigner{secret: []byte(secret), now: time.Now}, nil
}

// Sign returns a token valid for ttl
func (s *LinkSigner) Sign(sessionID, filename string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: link ttl must be positive", domain.ErrInvalidInput)
	}
	now := s.now()
	claims := linkClaims{
		SessionID: sessionID,
		Filename:  filename,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the signature, expiry and that the token names this file
func (s *LinkSigner) Verify(token, sessionID, filename string) error {
	if token == "" {
		return domain.ErrUnauthorized
	}
	var claims linkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return domain.ErrTokenExpired
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if claims.SessionID != sessionID || claims.Filename != filename {
		return fmt.Errorf("%w: token is for another file", domain.ErrTokenInvalid)
	}
	return nil
}
