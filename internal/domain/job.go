package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage enumerates the pipeline lifecycle states. A job only ever moves
// forward through the sequence, or jumps to StageFailed.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageResearch       Stage = "research"
	StagePromptCrafting Stage = "prompt_crafting"
	StageGenerating     Stage = "generating"
	StageEvaluating     Stage = "evaluating"
	StageComplete       Stage = "complete"
	StageFailed         Stage = "failed"
)

// Terminal reports whether no further stage transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Variant identifies one of the fixed creative treatments produced for a
// single request.
type Variant string

const (
	VariantFaithful       Variant = "v1-faithful"
	VariantEnhanced       Variant = "v2-enhanced"
	VariantAltComposition Variant = "v3-alt-composition"
	VariantStyleVariation Variant = "v4-style-variation"
	VariantBoldCreative   Variant = "v5-bold-creative"
	VariantReferenceCopy  Variant = "v6-reference-copy"
)

// Variants returns the canonical treatment set in pipeline order.
func Variants() []Variant {
	return []Variant{
		VariantFaithful,
		VariantEnhanced,
		VariantAltComposition,
		VariantStyleVariation,
		VariantBoldCreative,
		VariantReferenceCopy,
	}
}

// ParseVariant validates a raw variant identifier.
func ParseVariant(raw string) (Variant, error) {
	v := Variant(strings.TrimSpace(strings.ToLower(raw)))
	for _, known := range Variants() {
		if v == known {
			return v, nil
		}
	}
	return "", ErrUnknownVariant
}

// Request is the immutable user input that spawned a job.
type Request struct {
	Prompt         string    `json:"prompt"`
	ReferencePaths []string  `json:"reference_paths,omitempty"`
	AspectRatio    string    `json:"aspect_ratio"`
	Resolution     string    `json:"resolution"`
	ChatID         int64     `json:"chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Research holds the structured reference-image analysis.
type Research struct {
	StyleAnalysis    string   `json:"style_analysis"`
	ColorPalette     []string `json:"color_palette,omitempty"`
	CompositionNotes string   `json:"composition_notes"`
	Mood             string   `json:"mood"`
	KeyElements      []string `json:"key_elements,omitempty"`
	Raw              string   `json:"raw"`
}

// PromptVariant is one narrative generation prompt produced by the
// prompt-crafting stage.
type PromptVariant struct {
	Variant         Variant `json:"variant"`
	Label           string  `json:"label"`
	NarrativePrompt string  `json:"narrative_prompt"`
	Rationale       string  `json:"rationale,omitempty"`
}

// GeneratedImage records the outcome of generating a single variant.
// Successful images carry a storage key; failed ones carry the last error.
type GeneratedImage struct {
	Variant   Variant `json:"variant"`
	FilePath  string  `json:"file_path"`
	ModelText string  `json:"model_text,omitempty"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
}

// Scores are the four independent evaluation dimensions, each 0-10.
type Scores struct {
	Faithfulness float64 `json:"faithfulness"`
	Conciseness  float64 `json:"conciseness"`
	Readability  float64 `json:"readability"`
	Aesthetics   float64 `json:"aesthetics"`
}

// Total is the 0-40 aggregate used for ranking.
func (s Scores) Total() float64 {
	return s.Faithfulness + s.Conciseness + s.Readability + s.Aesthetics
}

// VariantEvaluation is one scored, ranked variant.
type VariantEvaluation struct {
	Variant Variant `json:"variant"`
	Scores  Scores  `json:"scores"`
	Review  string  `json:"review,omitempty"`
	Rank    int     `json:"rank"`
}

// Evaluation is the full critique of a job's generated images.
// Winner is empty when no variant could be evaluated.
type Evaluation struct {
	Evaluations []VariantEvaluation `json:"evaluations,omitempty"`
	Summary     string              `json:"summary"`
	Winner      Variant             `json:"winner,omitempty"`
}

// Refinement is one post-hoc edit of an already-generated variant. The
// original image is never overwritten; every refinement gets its own key.
type Refinement struct {
	Variant     Variant   `json:"variant"`
	Instruction string    `json:"instruction"`
	FilePath    string    `json:"file_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Job is the durable record of one end-to-end pipeline execution.
type Job struct {
	ID          string           `json:"id"`
	Request     Request          `json:"request"`
	Stage       Stage            `json:"stage"`
	Research    *Research        `json:"research,omitempty"`
	Prompts     []PromptVariant  `json:"prompts,omitempty"`
	Images      []GeneratedImage `json:"images,omitempty"`
	Evaluation  *Evaluation      `json:"evaluation,omitempty"`
	Refinements []Refinement     `json:"refinements,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewJob builds a queued job for the given request, assigning a short
// opaque identifier and stamping the creation time if unset.
func NewJob(req Request) *Job {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	return &Job{
		ID:      NewJobID(),
		Request: req,
		Stage:   StageQueued,
	}
}

// NewJobID returns a 12-hex-character opaque job identifier.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// SuccessfulImages returns the subset of images with a usable file reference.
func (j *Job) SuccessfulImages() []GeneratedImage {
	var out []GeneratedImage
	for _, img := range j.Images {
		if img.Success && img.FilePath != "" {
			out = append(out, img)
		}
	}
	return out
}

// Image returns the generated image for a variant, if present.
func (j *Job) Image(v Variant) (GeneratedImage, bool) {
	for _, img := range j.Images {
		if img.Variant == v {
			return img, true
		}
	}
	return GeneratedImage{}, false
}

// Prompt returns the crafted prompt for a variant, if present.
func (j *Job) Prompt(v Variant) (PromptVariant, bool) {
	for _, p := range j.Prompts {
		if p.Variant == v {
			return p, true
		}
	}
	return PromptVariant{}, false
}

// Feedback is a per-(job, variant) user rating. Rating is tri-state:
// -1 negative, 0 neutral, +1 positive. At most one variant per job may
// have Selected set.
type Feedback struct {
	JobID     string    `json:"job_id"`
	Variant   Variant   `json:"variant"`
	Rating    int       `json:"rating"`
	Selected  bool      `json:"selected"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRating reports whether r is one of the accepted tri-state values.
func ValidRating(r int) bool {
	return r >= -1 && r <= 1
}

// LearnedPrompt is a prompt that performed well in a past job, fed back
// into prompt crafting as few-shot context.
type LearnedPrompt struct {
	JobID      string  `json:"job_id"`
	Variant    Variant `json:"variant"`
	PromptText string  `json:"prompt_text"`
	UserPrompt string  `json:"user_prompt"`
	Rating     int     `json:"rating"`
	Selected   bool    `json:"selected"`
}
