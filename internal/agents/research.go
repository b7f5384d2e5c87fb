package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/providers/vision"
	"studio/internal/storage"
)

// ResearchAgent studies the user's references before anything is generated.
// With reference images present it extracts style, palette, composition and
// mood from them; without references it works from the prompt text alone.
type ResearchAgent struct {
	analyst vision.Analyst
	files   *storage.FileStore
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewResearchAgent wires the research stage.
func NewResearchAgent(analyst vision.Analyst, files *storage.FileStore, bus *events.Bus, logger zerolog.Logger) *ResearchAgent {
	return &ResearchAgent{analyst: analyst, files: files, bus: bus, logger: logger}
}

const researchSystem = `You are a meticulous visual researcher for an image generation studio.
Analyze the provided material and respond with plain text under exactly these headings:
STYLE ANALYSIS:
COLOR PALETTE:
COMPOSITION NOTES:
MOOD:
KEY ELEMENTS:
Under COLOR PALETTE and KEY ELEMENTS list one item per line prefixed with "- ".`

func (a *ResearchAgent) Research(ctx context.Context, job *domain.Job) (*domain.Research, error) {
	images := loadImages(ctx, a.files, job.Request.ReferencePaths)

	var prompt strings.Builder
	if len(images) > 0 {
		fmt.Fprintf(&prompt, "Study the %d attached reference image(s) for this request: %q\n", len(images), job.Request.Prompt)
		prompt.WriteString("Describe what a generation model must reproduce to stay faithful to them.")
	} else {
		fmt.Fprintf(&prompt, "No reference images were provided. Based only on the request %q, ", job.Request.Prompt)
		prompt.WriteString("propose the style, palette, composition and mood a strong rendition would use.")
	}

	a.bus.Emit(ctx, events.New(events.AgentMessage, job.ID, map[string]any{
		"agent":   "researcher",
		"message": fmt.Sprintf("analyzing %d reference image(s)", len(images)),
	}))

	text, err := a.analyst.Complete(ctx, vision.CompletionRequest{
		System:      researchSystem,
		Prompt:      prompt.String(),
		Images:      images,
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}

	research := parseResearch(text)
	a.logger.Debug().
		Str("job_id", job.ID).
		Str("provider", a.analyst.Name()).
		Int("references", len(images)).
		Msg("agents: research complete")
	return research, nil
}

// parseResearch splits the analyst's response into the known sections. Any
// heading the model skipped stays empty; the raw text is always preserved so
// downstream prompts lose nothing to parsing.
func parseResearch(text string) *domain.Research {
	research := &domain.Research{Raw: strings.TrimSpace(text)}

	sections := splitSections(text, []string{
		"STYLE ANALYSIS",
		"COLOR PALETTE",
		"COMPOSITION NOTES",
		"MOOD",
		"KEY ELEMENTS",
	})
	research.StyleAnalysis = sections["STYLE ANALYSIS"]
	research.CompositionNotes = sections["COMPOSITION NOTES"]
	research.Mood = sections["MOOD"]
	research.ColorPalette = parseListItems(sections["COLOR PALETTE"])
	research.KeyElements = parseListItems(sections["KEY ELEMENTS"])
	return research
}

// splitSections scans for "HEADING:" lines case-insensitively and collects
// the text between consecutive headings.
func splitSections(text string, headings []string) map[string]string {
	out := make(map[string]string, len(headings))
	lines := strings.Split(text, "\n")
	current := ""
	var buf []string

	flush := func() {
		if current != "" {
			out[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		matched := ""
		stripped := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#*"))
		for _, h := range headings {
			if strings.HasPrefix(strings.ToUpper(stripped), h+":") || strings.EqualFold(stripped, h+":") || strings.EqualFold(stripped, h) {
				matched = h
				rest := ""
				if idx := strings.Index(stripped, ":"); idx >= 0 {
					rest = strings.TrimSpace(stripped[idx+1:])
				}
				flush()
				current = h
				if rest != "" {
					buf = append(buf, rest)
				}
				break
			}
		}
		if matched == "" && current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

// parseListItems extracts "- item" bullet lines, falling back to plain
// non-empty lines when the model skipped the bullets.
func parseListItems(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

var _ Researcher = (*ResearchAgent)(nil)
