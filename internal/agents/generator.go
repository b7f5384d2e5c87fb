package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/providers/genai"
	"studio/internal/storage"
)

// ImageGenerator renders one image per crafted prompt. Variants are isolated:
// a variant that exhausts its retries is recorded as failed and the batch
// moves on, so one flaky render never sinks the job.
type ImageGenerator struct {
	client *genai.Client
	files  *storage.FileStore
	bus    *events.Bus
	logger zerolog.Logger
	policy RetryPolicy
}

// NewImageGenerator wires the generation stage.
func NewImageGenerator(client *genai.Client, files *storage.FileStore, bus *events.Bus, logger zerolog.Logger, policy RetryPolicy) *ImageGenerator {
	return &ImageGenerator{client: client, files: files, bus: bus, logger: logger, policy: policy}
}

func (g *ImageGenerator) Generate(ctx context.Context, job *domain.Job) ([]domain.GeneratedImage, error) {
	refs := g.referenceImages(ctx, job)
	total := len(job.Prompts)
	results := make([]domain.GeneratedImage, 0, total)

	for i, prompt := range job.Prompts {
		g.bus.Emit(ctx, events.New(events.Progress, job.ID, map[string]any{
			"current": i + 1,
			"total":   total,
			"variant": string(prompt.Variant),
		}))

		img := g.generateVariant(ctx, job, prompt, refs)
		results = append(results, img)

		// image_generated marks a success; failures surface as narration only.
		if img.Success {
			g.bus.Emit(ctx, events.New(events.ImageGenerated, job.ID, map[string]any{
				"variant":   string(img.Variant),
				"file_path": img.FilePath,
			}))
		} else {
			g.bus.Emit(ctx, events.New(events.AgentMessage, job.ID, map[string]any{
				"agent":   "generator",
				"message": fmt.Sprintf("%s failed: %s", img.Variant, img.Error),
			}))
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (g *ImageGenerator) generateVariant(ctx context.Context, job *domain.Job, prompt domain.PromptVariant, refs []genai.ReferenceImage) domain.GeneratedImage {
	result := domain.GeneratedImage{Variant: prompt.Variant}

	err := g.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			g.logger.Debug().
				Str("job_id", job.ID).
				Str("variant", string(prompt.Variant)).
				Int("attempt", attempt+1).
				Msg("agents: retrying variant")
		}
		out, err := g.client.GenerateImage(ctx, genai.ImageRequest{
			Prompt:      prompt.NarrativePrompt,
			AspectRatio: job.Request.AspectRatio,
			Resolution:  job.Request.Resolution,
			References:  refs,
			RequestID:   fmt.Sprintf("%s-%s", job.ID, prompt.Variant),
		})
		if err != nil {
			return err
		}
		key, err := g.files.Write(ctx, storage.ImageKey(job.ID, string(prompt.Variant)), out.Data)
		if err != nil {
			return err
		}
		result.FilePath = key
		result.ModelText = out.ModelText
		result.Success = true
		return nil
	})
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		g.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("variant", string(prompt.Variant)).
			Msg("agents: variant generation failed")
	}
	return result
}

// Refine produces an edited copy of an already generated variant under a new
// versioned key. The original file is never touched.
func (g *ImageGenerator) Refine(ctx context.Context, job *domain.Job, variant domain.Variant, instruction string) (*domain.Refinement, error) {
	img, ok := job.Image(variant)
	if !ok || !img.Success {
		return nil, fmt.Errorf("refine %s: %w", variant, domain.ErrNotFound)
	}
	base, err := g.files.Read(ctx, img.FilePath)
	if err != nil {
		return nil, fmt.Errorf("refine %s: %w", variant, err)
	}

	version := 1
	for _, r := range job.Refinements {
		if r.Variant == variant {
			version++
		}
	}
	key := storage.RefinementKey(job.ID, string(variant), version)

	var refined *genai.ImageResult
	err = g.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		out, err := g.client.RefineImage(ctx, genai.RefineRequest{
			Instruction: instruction,
			BaseImage: genai.ReferenceImage{
				MimeType: storage.DetectMediaType(base, img.FilePath),
				Data:     base,
			},
			RequestID: fmt.Sprintf("%s-%s-r%d", job.ID, variant, version),
		})
		if err != nil {
			return err
		}
		refined = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refine %s: %w", variant, err)
	}

	storedKey, err := g.files.Write(ctx, key, refined.Data)
	if err != nil {
		return nil, fmt.Errorf("refine %s: %w", variant, err)
	}
	refinement := &domain.Refinement{
		Variant:     variant,
		Instruction: instruction,
		FilePath:    storedKey,
		CreatedAt:   time.Now().UTC(),
	}
	g.bus.Emit(ctx, events.New(events.ImageRefined, job.ID, map[string]any{
		"variant":   string(variant),
		"file_path": storedKey,
		"version":   version,
	}))
	return refinement, nil
}

func (g *ImageGenerator) referenceImages(ctx context.Context, job *domain.Job) []genai.ReferenceImage {
	var out []genai.ReferenceImage
	for _, path := range job.Request.ReferencePaths {
		data, err := g.files.Read(ctx, path)
		if err != nil {
			g.logger.Warn().Err(err).Str("job_id", job.ID).Str("path", path).Msg("agents: skipping unreadable reference")
			continue
		}
		out = append(out, genai.ReferenceImage{
			MimeType: storage.DetectMediaType(data, path),
			Data:     data,
		})
	}
	return out
}

var _ Generator = (*ImageGenerator)(nil)
