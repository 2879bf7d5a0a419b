package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

type stubSummarizer struct {
	answer string
	err    error
	got    []string
}

func (s *stubSummarizer) Summarise(ctx context.Context, query string, passages []string, maxSentences int) (string, error) {
	s.got = passages
	return s.answer, s.err
}

func (s *stubSummarizer) Model() string {
	return "stub"
}

func TestChatService_Summarises(t *testing.T) {
	env := newTestEnv(t)
	env.addFile("s1", "a.txt", longText("volcanoes form where plates meet"))
	env.reindex(t, "s1", domain.IndexModeFull)

	summarizer := &stubSummarizer{answer: "Volcanoes form where plates meet."}
	svc := NewChatService(ChatServiceConfig{Retriever: env.retriever, Summarizer: summarizer, MaxSentences: 3})

	answer, err := svc.Ask(context.Background(), "volcanoes", domain.SearchOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != summarizer.answer {
		t.Errorf("unexpected answer %q", answer.Answer)
	}
	if len(answer.Sources) != 1 || len(summarizer.got) != 1 {
		t.Errorf("expected one source passed to summarizer, got %d/%d", len(answer.Sources), len(summarizer.got))
	}
}

func TestChatService_FallsBackToPreviews(t *testing.T) {
	env := newTestEnv(t)
	env.addFile("s1", "a.txt", longText("tides follow the moon"))
	env.reindex(t, "s1", domain.IndexModeFull)

	svc := NewChatService(ChatServiceConfig{
		Retriever:  env.retriever,
		Summarizer: &stubSummarizer{err: errors.New("boom")},
	})
	answer, err := svc.Ask(context.Background(), "tides", domain.SearchOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(answer.Answer, "tides follow the moon") {
		t.Errorf("expected preview fallback, got %q", answer.Answer)
	}
}

func TestChatService_NoCandidates(t *testing.T) {
	env := newTestEnv(t)
	svc := NewChatService(ChatServiceConfig{Retriever: env.retriever})

	answer, err := svc.Ask(context.Background(), "anything", domain.SearchOptions{SessionID: "empty"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != NoAnswer || len(answer.Sources) != 0 {
		t.Errorf("unexpected answer %+v", answer)
	}
}

func TestChatService_BlankQuery(t *testing.T) {
	env := newTestEnv(t)
	svc := NewChatService(ChatServiceConfig{Retriever: env.retriever})
	if _, err := svc.Ask(context.Background(), "", domain.SearchOptions{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
