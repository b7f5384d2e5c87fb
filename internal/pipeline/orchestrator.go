// Package pipeline drives a job through its stages, persisting at every
// boundary and broadcasting lifecycle events. The store is authoritative: a
// crash mid-run loses at most the stage in flight, never completed work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/agents"
	"studio/internal/domain"
	"studio/internal/events"
)

// Orchestrator owns the stage machine. Stages only ever advance; the sole
// exception is the jump to failed from any non-terminal stage.
type Orchestrator struct {
	store      domain.JobStore
	bus        *events.Bus
	researcher agents.Researcher
	architect  agents.Architect
	generator  agents.Generator
	critic     agents.Critic
	logger     zerolog.Logger
}

// NewOrchestrator wires the pipeline against its four stage agents.
func NewOrchestrator(
	store domain.JobStore,
	bus *events.Bus,
	researcher agents.Researcher,
	architect agents.Architect,
	generator agents.Generator,
	critic agents.Critic,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		bus:        bus,
		researcher: researcher,
		architect:  architect,
		generator:  generator,
		critic:     critic,
		logger:     logger,
	}
}

// Create validates the request and persists a queued job synchronously, so
// the job is visible to reads before the pipeline starts running it.
func (o *Orchestrator) Create(ctx context.Context, req domain.Request) (*domain.Job, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("pipeline: prompt is required")
	}
	job := domain.NewJob(req)
	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("pipeline: persist job: %w", err)
	}
	return job, nil
}

// Run executes the full pipeline for a queued job. It returns the terminal
// job state; the error return is reserved for infrastructure failures
// (store unreachable), not for jobs that fail their pipeline.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage != domain.StageQueued {
		return job, fmt.Errorf("pipeline: job %s already ran (stage %s)", job.ID, job.Stage)
	}

	now := time.Now().UTC()
	job.StartedAt = &now
	o.bus.Emit(ctx, events.New(events.JobStarted, job.ID, map[string]any{
		"prompt": job.Request.Prompt,
	}))

	if err := o.advance(ctx, job, domain.StageResearch); err != nil {
		return job, err
	}
	research, err := o.researcher.Research(ctx, job)
	if err != nil {
		return o.fail(ctx, job, err)
	}
	job.Research = research

	if err := o.advance(ctx, job, domain.StagePromptCrafting); err != nil {
		return job, err
	}
	prompts, err := o.architect.CraftPrompts(ctx, job)
	if err != nil {
		return o.fail(ctx, job, err)
	}
	job.Prompts = prompts

	if err := o.advance(ctx, job, domain.StageGenerating); err != nil {
		return job, err
	}
	images, err := o.generator.Generate(ctx, job)
	job.Images = images
	if err != nil {
		return o.fail(ctx, job, err)
	}

	// Nothing rendered: evaluating has no input, so the stage is skipped and
	// the job completes with the failure records and no evaluation.
	if len(job.SuccessfulImages()) > 0 {
		if err := o.advance(ctx, job, domain.StageEvaluating); err != nil {
			return job, err
		}
		evaluation, err := o.critic.Evaluate(ctx, job)
		if err != nil {
			return o.fail(ctx, job, err)
		}
		job.Evaluation = evaluation
	} else {
		o.logger.Warn().
			Str("job_id", job.ID).
			Msg("pipeline: no variants rendered, skipping evaluation")
	}

	done := time.Now().UTC()
	job.Stage = domain.StageComplete
	job.CompletedAt = &done
	if err := o.store.Update(ctx, job); err != nil {
		return job, fmt.Errorf("pipeline: persist completion: %w", err)
	}
	o.bus.Emit(ctx, events.New(events.JobCompleted, job.ID, map[string]any{
		"images": len(job.SuccessfulImages()),
		"winner": winnerOf(job),
	}))
	o.logger.Info().
		Str("job_id", job.ID).
		Int("images", len(job.SuccessfulImages())).
		Msg("pipeline: job complete")
	return job, nil
}

// Refine runs an out-of-band edit on a finished job's variant. The parent
// job's stage never changes; refinement failures surface only as an error
// (and event) to the caller.
func (o *Orchestrator) Refine(ctx context.Context, jobID string, variant domain.Variant, instruction string) (*domain.Refinement, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, errors.New("pipeline: refine instruction is required")
	}
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	refinement, err := o.generator.Refine(ctx, job, variant, instruction)
	if err != nil {
		o.bus.Emit(ctx, events.New(events.JobFailed, job.ID, map[string]any{
			"operation": "refine",
			"variant":   string(variant),
			"error":     err.Error(),
		}))
		return nil, err
	}
	job.Refinements = append(job.Refinements, *refinement)
	if err := o.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("pipeline: persist refinement: %w", err)
	}
	return refinement, nil
}

// advance moves the job to the next stage, persists, and broadcasts.
func (o *Orchestrator) advance(ctx context.Context, job *domain.Job, stage domain.Stage) error {
	from := job.Stage
	job.Stage = stage
	if err := o.store.Update(ctx, job); err != nil {
		return fmt.Errorf("pipeline: persist stage %s: %w", stage, err)
	}
	o.bus.Emit(ctx, events.New(events.StageChanged, job.ID, map[string]any{
		"from": string(from),
		"to":   string(stage),
	}))
	o.logger.Debug().
		Str("job_id", job.ID).
		Str("from", string(from)).
		Str("to", string(stage)).
		Msg("pipeline: stage changed")
	return nil
}

// fail marks the job failed with the causing error. The returned error is
// nil: a failed job is a handled outcome, not an infrastructure fault.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	now := time.Now().UTC()
	job.Stage = domain.StageFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	if err := o.store.Update(ctx, job); err != nil {
		return job, fmt.Errorf("pipeline: persist failure: %w", err)
	}
	o.bus.Emit(ctx, events.New(events.JobFailed, job.ID, map[string]any{
		"error": cause.Error(),
	}))
	o.logger.Warn().
		Err(cause).
		Str("job_id", job.ID).
		Msg("pipeline: job failed")
	return job, nil
}

func winnerOf(job *domain.Job) string {
	if job.Evaluation == nil {
		return ""
	}
	return string(job.Evaluation.Winner)
}
