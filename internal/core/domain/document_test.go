package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewSourceFile(t *testing.T) {
	f := NewSourceFile("s1", "/data/s1/Quarterly.Report.PDF")

	if f.Filename != "Quarterly.Report.PDF" {
		t.Errorf("expected filename Quarterly.Report.PDF, got %s", f.Filename)
	}
	if f.Title != "Quarterly.Report" {
		t.Errorf("expected title Quarterly.Report, got %s", f.Title)
	}
	if f.Ext != "pdf" {
		t.Errorf("expected ext pdf, got %s", f.Ext)
	}
	if f.SessionID != "s1" {
		t.Errorf("expected session s1, got %s", f.SessionID)
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := map[string]string{
		"intro.txt":    "intro",
		"a.b.c.md":     "a.b.c",
		"noext":        "noext",
		".hidden":      ".hidden",
		"dir/file.pdf": "file",
	}
	for in, want := range tests {
		if got := TitleFromFilename(in); got != want {
			t.Errorf("TitleFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordID_Deterministic(t *testing.T) {
	a := RecordID("/data/s1/intro.txt", 1, 0)
	b := RecordID("/data/s1/intro.txt", 1, 0)
	c := RecordID("/data/s1/intro.txt", 1, 1)
	d := RecordID("/data/s1/intro.txt", 2, 0)

	if a != b {
		t.Error("expected same id for same inputs")
	}
	if a == c || a == d || c == d {
		t.Error("expected distinct ids for distinct chunks")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

func TestChunk_RecordID(t *testing.T) {
	c := Chunk{SourcePath: "/p.txt", PageNumber: 3, ChunkIndex: 2}
	if c.RecordID() != RecordID("/p.txt", 3, 2) {
		t.Error("chunk id should match RecordID")
	}
}

func TestVector_Validate(t *testing.T) {
	if err := (Vector{1, 2, 3}).Validate(3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := (Vector{1, 2}).Validate(3)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}

	err = (Vector{1, float32(math.NaN()), 3}).Validate(3)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for NaN, got %v", err)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{"identical", Vector{1, 0}, Vector{1, 0}, 0},
		{"orthogonal", Vector{1, 0}, Vector{0, 1}, 1},
		{"opposite", Vector{1, 0}, Vector{-1, 0}, 2},
		{"scaled", Vector{2, 0}, Vector{5, 0}, 0},
		{"zero vector", Vector{0, 0}, Vector{1, 0}, 1},
		{"length mismatch", Vector{1}, Vector{1, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	meta := RecordMetadata{SessionID: "A", Path: "/a.txt"}

	if !(Filter{}).Matches(meta) {
		t.Error("empty filter should match everything")
	}
	if !(Filter{SessionID: "A"}).Matches(meta) {
		t.Error("expected session A to match")
	}
	if (Filter{SessionID: "B"}).Matches(meta) {
		t.Error("session B must not match a session A record")
	}
	if (Filter{SessionID: "A", Path: "/b.txt"}).Matches(meta) {
		t.Error("path filter should restrict")
	}
}

func TestSessionFilter(t *testing.T) {
	if !SessionFilter("default").IsEmpty() {
		t.Error("default session should be unscoped")
	}
	if !SessionFilter("  ").IsEmpty() {
		t.Error("blank session should be unscoped")
	}
	if SessionFilter("s1").SessionID != "s1" {
		t.Error("expected s1 filter")
	}
}

func TestValidateSessionID(t *testing.T) {
	valid := []string{"s1", "chat-42", "default"}
	for _, s := range valid {
		if err := ValidateSessionID(s); err != nil {
			t.Errorf("expected %q to be valid, got %v", s, err)
		}
	}

	invalid := []string{"", " ", "..", "a/b", `a\b`}
	for _, s := range invalid {
		if err := ValidateSessionID(s); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected %q to be rejected, got %v", s, err)
		}
	}
}

func TestIndexResult_Finish(t *testing.T) {
	tests := []struct {
		name       string
		result     IndexResult
		discovered int
		want       IndexStatus
	}{
		{"nothing on disk", IndexResult{}, 0, IndexStatusEmpty},
		{"all good", IndexResult{IndexedCount: 2}, 2, IndexStatusSuccess},
		{"some failed", IndexResult{IndexedCount: 1, Failures: []FileFailure{{Path: "x"}}}, 2, IndexStatusPartial},
		{"all failed", IndexResult{Failures: []FileFailure{{Path: "x"}}}, 1, IndexStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.result
			r.Finish(time.Now(), tt.discovered)
			if r.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, r.Status)
			}
		})
	}
}
