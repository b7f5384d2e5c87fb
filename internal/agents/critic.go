package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/providers/vision"
	"studio/internal/storage"
)

// CriticAgent scores every successfully generated image on four dimensions
// and picks a winner. A response that cannot be parsed degrades to an
// unscored summary instead of failing the job.
type CriticAgent struct {
	analyst vision.Analyst
	files   *storage.FileStore
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewCriticAgent wires the evaluation stage.
func NewCriticAgent(analyst vision.Analyst, files *storage.FileStore, bus *events.Bus, logger zerolog.Logger) *CriticAgent {
	return &CriticAgent{analyst: analyst, files: files, bus: bus, logger: logger}
}

const criticSystem = `You are an exacting art critic for an image generation studio.
Score each attached image on four dimensions from 0 to 10: faithfulness to the
request, conciseness of the visual message, readability, and aesthetics.
Respond strictly with JSON matching this schema:
{"evaluations":[{"variant":string,"scores":{"faithfulness":number,"conciseness":number,"readability":number,"aesthetics":number},"review":string}],"summary":string,"winner":string}`

type criticPayload struct {
	Evaluations []struct {
		Variant string `json:"variant"`
		Scores  struct {
			Faithfulness float64 `json:"faithfulness"`
			Conciseness  float64 `json:"conciseness"`
			Readability  float64 `json:"readability"`
			Aesthetics   float64 `json:"aesthetics"`
		} `json:"scores"`
		Review string `json:"review"`
	} `json:"evaluations"`
	Summary string `json:"summary"`
	Winner  string `json:"winner"`
}

func (c *CriticAgent) Evaluate(ctx context.Context, job *domain.Job) (*domain.Evaluation, error) {
	successful := job.SuccessfulImages()
	if len(successful) == 0 {
		return &domain.Evaluation{Summary: "no images to evaluate"}, nil
	}

	c.bus.Emit(ctx, events.New(events.AgentMessage, job.ID, map[string]any{
		"agent":   "critic",
		"message": fmt.Sprintf("evaluating %d image(s)", len(successful)),
	}))

	images := make([]vision.Image, 0, len(successful))
	var order []domain.Variant
	for _, img := range successful {
		data, err := c.files.Read(ctx, img.FilePath)
		if err != nil {
			c.logger.Warn().Err(err).Str("job_id", job.ID).Str("variant", string(img.Variant)).Msg("agents: skipping unreadable image")
			continue
		}
		images = append(images, vision.Image{
			MimeType: storage.DetectMediaType(data, img.FilePath),
			Data:     data,
		})
		order = append(order, img.Variant)
	}
	if len(images) == 0 {
		return &domain.Evaluation{Summary: "no readable images to evaluate"}, nil
	}

	text, err := c.analyst.Complete(ctx, vision.CompletionRequest{
		System:       criticSystem,
		Prompt:       c.buildPrompt(job, order),
		Images:       images,
		Temperature:  0.3,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	payload, err := vision.ParsePayload[criticPayload](text)
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("agents: critic response unparseable, keeping raw summary")
		return &domain.Evaluation{Summary: strings.TrimSpace(text)}, nil
	}
	return c.buildEvaluation(ctx, job, payload), nil
}

func (c *CriticAgent) buildPrompt(job *domain.Job, order []domain.Variant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %q\n\n", job.Request.Prompt)
	b.WriteString("The images are attached in this order:\n")
	for i, v := range order {
		label := string(v)
		if p, ok := job.Prompt(v); ok && p.Label != "" {
			label = p.Label
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, v, label)
	}
	b.WriteString("\nScore every image, write a one-paragraph summary comparing them, and name the winning variant.")
	return b.String()
}

// buildEvaluation validates the payload, ranks by total score descending and
// applies the critic's explicit winner when it names a scored variant.
func (c *CriticAgent) buildEvaluation(ctx context.Context, job *domain.Job, payload criticPayload) *domain.Evaluation {
	evaluation := &domain.Evaluation{Summary: strings.TrimSpace(payload.Summary)}
	seen := make(map[domain.Variant]bool)
	for _, raw := range payload.Evaluations {
		v, err := domain.ParseVariant(raw.Variant)
		if err != nil || seen[v] {
			continue
		}
		if _, ok := job.Image(v); !ok {
			continue
		}
		seen[v] = true
		evaluation.Evaluations = append(evaluation.Evaluations, domain.VariantEvaluation{
			Variant: v,
			Scores: domain.Scores{
				Faithfulness: clampScore(raw.Scores.Faithfulness),
				Conciseness:  clampScore(raw.Scores.Conciseness),
				Readability:  clampScore(raw.Scores.Readability),
				Aesthetics:   clampScore(raw.Scores.Aesthetics),
			},
			Review: strings.TrimSpace(raw.Review),
		})
	}

	sort.SliceStable(evaluation.Evaluations, func(i, j int) bool {
		return evaluation.Evaluations[i].Scores.Total() > evaluation.Evaluations[j].Scores.Total()
	})
	for i := range evaluation.Evaluations {
		evaluation.Evaluations[i].Rank = i + 1
	}

	if len(evaluation.Evaluations) > 0 {
		evaluation.Winner = evaluation.Evaluations[0].Variant
		if declared, err := domain.ParseVariant(payload.Winner); err == nil && seen[declared] {
			evaluation.Winner = declared
		}
	}

	for _, ev := range evaluation.Evaluations {
		c.bus.Emit(ctx, events.New(events.VariantScored, job.ID, map[string]any{
			"variant": string(ev.Variant),
			"total":   ev.Scores.Total(),
			"rank":    ev.Rank,
		}))
	}
	return evaluation
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

var _ Critic = (*CriticAgent)(nil)
