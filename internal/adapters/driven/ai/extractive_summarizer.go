package ai

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Summarizer = (*FrequencySummarizer)(nil)

// DefaultSummarySentences is used when the caller passes a non-positive limit
const DefaultSummarySentences = 3

// queryBoost weights sentence tokens that also occur in the query
const queryBoost = 2.0

var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]*`)

// FrequencySummarizer ranks sentences by normalized word frequency across
// the passages, boosted by overlap with the query. Stopwords are ignored.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based extractive summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords()}
}

func (s *FrequencySummarizer) Model() string {
	return "extractive-frequency"
}

// Summarise returns the top sentences joined by spaces, in passage order.
// Duplicate sentences across passages are counted once.
func (s *FrequencySummarizer) Summarise(ctx context.Context, query string, passages []string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultSummarySentences
	}

	var sentences []string
	seen := make(map[string]bool)
	for _, p := range passages {
		for _, raw := range sentencePattern.FindAllString(p, -1) {
			sent := strings.Join(strings.Fields(raw), " ")
			if len(s.tokens(sent)) == 0 {
				continue
			}
			key := strings.ToLower(sent)
			if seen[key] {
				continue
			}
			seen[key] = true
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}

	freq := make(map[string]float64)
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	var maxF float64
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}

	queryTerms := make(map[string]bool)
	for _, tok := range s.tokens(query) {
		queryTerms[tok] = true
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		var sc float64
		for _, tok := range toks {
			w := freq[tok]
			if queryTerms[tok] {
				w += queryBoost
			}
			sc += w
		}
		scores[i] = scored{i, sc / math.Sqrt(float64(len(toks)))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)

	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) tokens(text string) []string {
	var out []string
	for _, tok := range tokenize(text) {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so",
		"such", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
