// Package vespa is a VectorIndex on a Vespa content cluster, talking to the
// document/v1 and search APIs over HTTP.
package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

const (
	namespace = "sercha"
	docType   = "embedding"
)

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the query/feed endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Dimensions must match the embedding tensor in the deployed schema
	Dimensions int

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string, dimensions int) Config {
	return Config{
		BaseURL:    baseURL,
		Dimensions: dimensions,
		Timeout:    30 * time.Second,
	}
}

// statusError is a non-2xx answer from Vespa
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vespa returned %d: %s", e.status, e.body)
}

// do sends a JSON request and decodes a JSON answer into out when non-nil.
// Transport failures and 5xx answers become domain.ErrIndexUnavailable.
func (v *VectorIndex) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, serr)
		}
		return serr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding vespa response: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var serr *statusError
	return errors.As(err, &serr) && serr.status == http.StatusNotFound
}

// quote escapes a value for YQL strings and document selections
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
