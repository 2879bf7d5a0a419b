package ai

import (
	"context"
	"math"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure LexicalReranker implements Reranker
var _ driven.Reranker = (*LexicalReranker)(nil)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// LexicalReranker scores passages against the query with BM25, using the
// candidate batch itself as the corpus for document frequencies.
// It is deterministic and needs no model.
type LexicalReranker struct{}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Score returns one BM25 score per passage. Passages sharing no query term score 0.
func (r *LexicalReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	if len(passages) == 0 {
		return scores, nil
	}

	queryTerms := uniqueTerms(tokenize(query))
	if len(queryTerms) == 0 {
		return scores, nil
	}

	docs := make([]map[string]int, len(passages))
	lengths := make([]int, len(passages))
	df := make(map[string]int)
	var total int
	for i, p := range passages {
		toks := tokenize(p)
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		docs[i] = tf
		lengths[i] = len(toks)
		total += len(toks)
	}

	n := float64(len(passages))
	avgLen := float64(total) / n
	if avgLen == 0 {
		return scores, nil
	}

	for i, tf := range docs {
		var s float64
		for _, term := range queryTerms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			d := float64(df[term])
			idf := math.Log(1 + (n-d+0.5)/(d+0.5))
			s += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(lengths[i])/avgLen))
		}
		scores[i] = s
	}
	return scores, nil
}

func (r *LexicalReranker) Model() string {
	return "lexical-bm25"
}

func (r *LexicalReranker) Close() error {
	return nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
