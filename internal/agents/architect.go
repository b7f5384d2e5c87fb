package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/providers/vision"
)

// PromptArchitect crafts the fixed set of narrative generation prompts, one
// per variant treatment. Prompts that scored well in earlier jobs are fed
// back in as few-shot context.
type PromptArchitect struct {
	analyst vision.Analyst
	store   domain.JobStore
	bus     *events.Bus
	logger  zerolog.Logger

	// LearnedLimit caps how many past prompts get included. Zero means the
	// default of 5.
	LearnedLimit int
}

// NewPromptArchitect wires the prompt-crafting stage.
func NewPromptArchitect(analyst vision.Analyst, store domain.JobStore, bus *events.Bus, logger zerolog.Logger) *PromptArchitect {
	return &PromptArchitect{analyst: analyst, store: store, bus: bus, logger: logger}
}

var variantBriefs = map[domain.Variant]string{
	domain.VariantFaithful:       "a faithful rendition of exactly what the user asked for",
	domain.VariantEnhanced:       "the user's request enhanced with richer lighting, detail and polish",
	domain.VariantAltComposition: "the same subject from a different composition or camera angle",
	domain.VariantStyleVariation: "the same subject in a distinctly different artistic style",
	domain.VariantBoldCreative:   "a bold creative reinterpretation that takes real risks",
	domain.VariantReferenceCopy:  "a rendition that mirrors the reference material as closely as possible",
}

const architectSystem = `You are a senior prompt engineer for an image generation studio.
You write narrative prompts: flowing descriptive paragraphs, never keyword lists.
Respond strictly with JSON matching this schema:
{"variants":[{"variant":string,"label":string,"narrative_prompt":string,"rationale":string}]}`

type architectPayload struct {
	Variants []struct {
		Variant         string `json:"variant"`
		Label           string `json:"label"`
		NarrativePrompt string `json:"narrative_prompt"`
		Rationale       string `json:"rationale"`
	} `json:"variants"`
}

func (a *PromptArchitect) CraftPrompts(ctx context.Context, job *domain.Job) ([]domain.PromptVariant, error) {
	a.bus.Emit(ctx, events.New(events.AgentMessage, job.ID, map[string]any{
		"agent":   "architect",
		"message": fmt.Sprintf("crafting %d prompt variants", len(domain.Variants())),
	}))

	text, err := a.analyst.Complete(ctx, vision.CompletionRequest{
		System:       architectSystem,
		Prompt:       a.buildPrompt(ctx, job),
		Temperature:  0.8,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("craft prompts: %w", err)
	}

	payload, err := vision.ParsePayload[architectPayload](text)
	if err != nil {
		return nil, fmt.Errorf("craft prompts: parse response: %w", err)
	}

	prompts := make([]domain.PromptVariant, 0, len(payload.Variants))
	seen := make(map[domain.Variant]bool)
	for _, raw := range payload.Variants {
		v, err := domain.ParseVariant(raw.Variant)
		if err != nil || seen[v] {
			continue
		}
		narrative := strings.TrimSpace(raw.NarrativePrompt)
		if narrative == "" {
			continue
		}
		seen[v] = true
		label := strings.TrimSpace(raw.Label)
		if label == "" {
			label = string(v)
		}
		prompts = append(prompts, domain.PromptVariant{
			Variant:         v,
			Label:           label,
			NarrativePrompt: narrative,
			Rationale:       strings.TrimSpace(raw.Rationale),
		})
	}
	if len(prompts) == 0 {
		return nil, domain.ErrNoUsablePrompts
	}

	a.logger.Debug().
		Str("job_id", job.ID).
		Int("variants", len(prompts)).
		Msg("agents: prompts crafted")
	return prompts, nil
}

func (a *PromptArchitect) buildPrompt(ctx context.Context, job *domain.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %q\n", job.Request.Prompt)
	if job.Request.AspectRatio != "" {
		fmt.Fprintf(&b, "Aspect ratio: %s\n", job.Request.AspectRatio)
	}

	if r := job.Research; r != nil {
		b.WriteString("\nResearch findings:\n")
		if r.StyleAnalysis != "" {
			fmt.Fprintf(&b, "Style: %s\n", r.StyleAnalysis)
		}
		if len(r.ColorPalette) > 0 {
			fmt.Fprintf(&b, "Palette: %s\n", strings.Join(r.ColorPalette, ", "))
		}
		if r.CompositionNotes != "" {
			fmt.Fprintf(&b, "Composition: %s\n", r.CompositionNotes)
		}
		if r.Mood != "" {
			fmt.Fprintf(&b, "Mood: %s\n", r.Mood)
		}
		if len(r.KeyElements) > 0 {
			fmt.Fprintf(&b, "Key elements: %s\n", strings.Join(r.KeyElements, ", "))
		}
	}

	b.WriteString("\nWrite one narrative prompt for each of these variants:\n")
	for _, v := range domain.Variants() {
		fmt.Fprintf(&b, "- %s: %s\n", v, variantBriefs[v])
	}

	if learned := a.learnedContext(ctx); learned != "" {
		b.WriteString("\nPrompts users loved in past jobs, as style guidance:\n")
		b.WriteString(learned)
	}
	return b.String()
}

// learnedContext folds top-rated past prompts into few-shot examples. Lookup
// failures are logged and skipped, crafting never blocks on history.
func (a *PromptArchitect) learnedContext(ctx context.Context) string {
	limit := a.LearnedLimit
	if limit <= 0 {
		limit = 5
	}
	learned, err := a.store.TopPerformingPrompts(ctx, limit)
	if err != nil {
		a.logger.Warn().Err(err).Msg("agents: learned prompt lookup failed")
		return ""
	}
	var b strings.Builder
	for _, lp := range learned {
		if strings.TrimSpace(lp.PromptText) == "" {
			continue
		}
		marker := "liked"
		if lp.Selected {
			marker = "selected as best"
		}
		fmt.Fprintf(&b, "- (%s, for request %q) %s\n", marker, lp.UserPrompt, lp.PromptText)
	}
	return b.String()
}

var _ Architect = (*PromptArchitect)(nil)
