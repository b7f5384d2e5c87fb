package agents

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/providers/vision"
	"studio/internal/storage"
)

// fakeAnalyst scripts the model response for agent tests.
type fakeAnalyst struct {
	fn func(req vision.CompletionRequest) (string, error)
}

func (f *fakeAnalyst) Name() string { return "fake" }

func (f *fakeAnalyst) Complete(ctx context.Context, req vision.CompletionRequest) (string, error) {
	return f.fn(req)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testFiles(t *testing.T) *storage.FileStore {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return files
}

func TestParseResearchSections(t *testing.T) {
	text := `STYLE ANALYSIS:
Flat vector artwork with heavy outlines.

COLOR PALETTE:
- crimson
- off-white
* slate gray

COMPOSITION NOTES: Rule of thirds, subject left.
MOOD:
Playful.
KEY ELEMENTS:
- mascot
- skyline`

	r := parseResearch(text)
	if !strings.Contains(r.StyleAnalysis, "Flat vector artwork") {
		t.Fatalf("style = %q", r.StyleAnalysis)
	}
	if len(r.ColorPalette) != 3 || r.ColorPalette[0] != "crimson" || r.ColorPalette[2] != "slate gray" {
		t.Fatalf("palette = %v", r.ColorPalette)
	}
	if r.CompositionNotes != "Rule of thirds, subject left." {
		t.Fatalf("composition = %q", r.CompositionNotes)
	}
	if r.Mood != "Playful." {
		t.Fatalf("mood = %q", r.Mood)
	}
	if len(r.KeyElements) != 2 || r.KeyElements[1] != "skyline" {
		t.Fatalf("key elements = %v", r.KeyElements)
	}
	if r.Raw == "" {
		t.Fatalf("raw text must be preserved")
	}
}

func TestParseResearchToleratesMissingSections(t *testing.T) {
	r := parseResearch("The model ignored the requested format entirely.")
	if r.StyleAnalysis != "" || r.Mood != "" || len(r.ColorPalette) != 0 {
		t.Fatalf("expected empty sections, got %+v", r)
	}
	if r.Raw != "The model ignored the requested format entirely." {
		t.Fatalf("raw = %q", r.Raw)
	}
}

func TestParseResearchMarkdownHeadings(t *testing.T) {
	text := "## STYLE ANALYSIS:\nPainterly.\n**MOOD:** is ignored but\nMOOD:\nSomber."
	r := parseResearch(text)
	if r.StyleAnalysis == "" {
		t.Fatalf("markdown heading not recognized")
	}
}

func TestResearchAgentWithoutReferences(t *testing.T) {
	var captured vision.CompletionRequest
	analyst := &fakeAnalyst{fn: func(req vision.CompletionRequest) (string, error) {
		captured = req
		return "STYLE ANALYSIS:\nMinimalist.\nMOOD:\nSerene.", nil
	}}
	bus := events.NewBus(testLogger())
	agent := NewResearchAgent(analyst, testFiles(t), bus, testLogger())

	job := domain.NewJob(domain.Request{Prompt: "a quiet lake at dawn"})
	research, err := agent.Research(context.Background(), job)
	if err != nil {
		t.Fatalf("research: %v", err)
	}
	if len(captured.Images) != 0 {
		t.Fatalf("expected no images attached")
	}
	if !strings.Contains(captured.Prompt, "a quiet lake at dawn") {
		t.Fatalf("prompt missing user request: %q", captured.Prompt)
	}
	if research.Mood != "Serene." {
		t.Fatalf("mood = %q", research.Mood)
	}
}

func TestResearchAgentAttachesReferences(t *testing.T) {
	files := testFiles(t)
	key, err := files.Write(context.Background(), "references/1/a.png", []byte("\x89PNG\r\n\x1a\nxx"))
	if err != nil {
		t.Fatalf("write reference: %v", err)
	}

	var captured vision.CompletionRequest
	analyst := &fakeAnalyst{fn: func(req vision.CompletionRequest) (string, error) {
		captured = req
		return "MOOD:\nWarm.", nil
	}}
	agent := NewResearchAgent(analyst, files, events.NewBus(testLogger()), testLogger())

	job := domain.NewJob(domain.Request{Prompt: "poster", ReferencePaths: []string{key, "references/1/missing.png"}})
	if _, err := agent.Research(context.Background(), job); err != nil {
		t.Fatalf("research: %v", err)
	}
	if len(captured.Images) != 1 {
		t.Fatalf("images attached = %d, want 1 (missing path skipped)", len(captured.Images))
	}
	if captured.Images[0].MimeType != "image/png" {
		t.Fatalf("mime = %q", captured.Images[0].MimeType)
	}
}

func TestResearchAgentPropagatesAnalystError(t *testing.T) {
	analyst := &fakeAnalyst{fn: func(req vision.CompletionRequest) (string, error) {
		return "", errors.New("model offline")
	}}
	agent := NewResearchAgent(analyst, testFiles(t), events.NewBus(testLogger()), testLogger())
	if _, err := agent.Research(context.Background(), domain.NewJob(domain.Request{Prompt: "x"})); err == nil {
		t.Fatalf("expected error")
	}
}
