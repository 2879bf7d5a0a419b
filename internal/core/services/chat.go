package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure chatService implements ChatService
var _ driving.ChatService = (*chatService)(nil)

// NoAnswer is returned when retrieval finds nothing
const NoAnswer = "No relevant documents found."

// chatService answers from retrieved passages without generation
type chatService struct {
	retriever    *Retriever
	summarizer   driven.Summarizer
	linker       FileLinker
	maxSentences int
	logger       *slog.Logger
}

// ChatServiceConfig holds dependencies for the chat service.
type ChatServiceConfig struct {
	Retriever    *Retriever
	Summarizer   driven.Summarizer // Optional: previews are joined when nil
	Linker       FileLinker
	MaxSentences int
	Logger       *slog.Logger
}

// NewChatService creates a new ChatService
func NewChatService(cfg ChatServiceConfig) driving.ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &chatService{
		retriever:    cfg.Retriever,
		summarizer:   cfg.Summarizer,
		linker:       cfg.Linker,
		maxSentences: cfg.MaxSentences,
		logger:       logger,
	}
}

// Ask retrieves passages for the query and summarizes them
func (s *chatService) Ask(ctx context.Context, query string, opts domain.SearchOptions) (*domain.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	retrieval, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(retrieval.Candidates) == 0 {
		return &domain.Answer{Query: query, Answer: NoAnswer, Sources: []domain.SearchHit{}}, nil
	}

	sources := make([]domain.SearchHit, len(retrieval.Candidates))
	passages := make([]string, len(retrieval.Candidates))
	for i, c := range retrieval.Candidates {
		sources[i] = newHit(c, domain.Point3D{}, s.linker)
		passages[i] = c.Record.Text
	}

	answer := ""
	if s.summarizer != nil {
		answer, err = s.summarizer.Summarise(ctx, query, passages, s.maxSentences)
		if err != nil {
			s.logger.Warn("summarizer failed, falling back to previews", "error", err)
			answer = ""
		}
	}
	if answer == "" {
		previews := make([]string, len(sources))
		for i, h := range sources {
			previews[i] = h.Preview
		}
		answer = strings.Join(previews, " ")
	}

	return &domain.Answer{Query: query, Answer: answer, Sources: sources}, nil
}
