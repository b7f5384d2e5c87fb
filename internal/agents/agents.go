// Package agents implements the four pipeline stages as independent workers:
// reference research, prompt crafting, image generation and critique. Each
// agent narrates its progress on the event bus and returns plain domain
// values; orchestration and persistence stay outside.
package agents

import (
	"context"

	"studio/internal/domain"
	"studio/internal/providers/vision"
	"studio/internal/storage"
)

// Researcher analyzes the request and its reference images.
type Researcher interface {
	Research(ctx context.Context, job *domain.Job) (*domain.Research, error)
}

// Architect turns research plus the user prompt into the fixed variant set of
// narrative generation prompts.
type Architect interface {
	CraftPrompts(ctx context.Context, job *domain.Job) ([]domain.PromptVariant, error)
}

// Generator renders one image per crafted prompt and refines existing ones.
type Generator interface {
	Generate(ctx context.Context, job *domain.Job) ([]domain.GeneratedImage, error)
	Refine(ctx context.Context, job *domain.Job, variant domain.Variant, instruction string) (*domain.Refinement, error)
}

// Critic scores the successfully generated images.
type Critic interface {
	Evaluate(ctx context.Context, job *domain.Job) (*domain.Evaluation, error)
}

// loadImages reads stored reference images and sniffs their MIME types.
// Unreadable paths are skipped; the agents degrade to text-only analysis.
func loadImages(ctx context.Context, files *storage.FileStore, paths []string) []vision.Image {
	var out []vision.Image
	for _, path := range paths {
		data, err := files.Read(ctx, path)
		if err != nil {
			continue
		}
		out = append(out, vision.Image{
			MimeType: storage.DetectMediaType(data, path),
			Data:     data,
		})
	}
	return out
}
