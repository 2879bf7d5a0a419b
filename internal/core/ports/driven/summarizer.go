package driven

import (
	"context"
)

// Summarizer condenses retrieved passages into a short answer.
// Implementations are extractive: every sentence returned appears in the
// input passages.
type Summarizer interface {
	// Summarise selects up to maxSentences sentences from passages that best
	// cover the query. Sentences keep their original order.
	Summarise(ctx context.Context, query string, passages []string, maxSentences int) (string, error)

	// Model returns the summarizer name
	Model() string
}
