package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// pgStore connects to the database named by TEST_DATABASE_URL, or skips.
func pgStore(t *testing.T) *JobRepositoryPG {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewJobRepositoryPG(pool)
}

func pgJob(prompt string) *domain.Job {
	return domain.NewJob(domain.Request{Prompt: prompt, AspectRatio: "1:1", CreatedAt: time.Now().UTC()})
}

func TestPGJobLifecycle(t *testing.T) {
	store := pgStore(t)
	ctx := context.Background()

	job := pgJob(fmt.Sprintf("pg lifecycle %d", time.Now().UnixNano()))
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != domain.StageQueued || got.Request.Prompt != job.Request.Prompt {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	got.Stage = domain.StageComplete
	done := time.Now().UTC()
	got.CompletedAt = &done
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Stage != domain.StageComplete || again.CompletedAt == nil {
		t.Fatalf("update not persisted: %+v", again)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	for _, j := range active {
		if j.ID == job.ID {
			t.Fatalf("completed job listed as active")
		}
	}

	if _, err := store.Get(ctx, "does-not-exist"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, pgJob("never created")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestPGSearch(t *testing.T) {
	store := pgStore(t)
	ctx := context.Background()

	marker := fmt.Sprintf("zebra-%d", time.Now().UnixNano())
	job := pgJob("A " + marker + " crossing the savanna")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := store.Search(ctx, marker)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].ID != job.ID {
		t.Fatalf("search hits = %d", len(found))
	}

	// Case-insensitive.
	upper, err := store.Search(ctx, "ZEBRA-")
	if err != nil {
		t.Fatalf("search upper: %v", err)
	}
	if len(upper) == 0 {
		t.Fatalf("case-insensitive search returned nothing")
	}
}

func TestPGFeedbackExclusivity(t *testing.T) {
	store := pgStore(t)
	ctx := context.Background()

	job := pgJob(fmt.Sprintf("pg feedback %d", time.Now().UnixNano()))
	job.Prompts = []domain.PromptVariant{
		{Variant: domain.VariantFaithful, NarrativePrompt: "narrative one"},
		{Variant: domain.VariantEnhanced, NarrativePrompt: "narrative two"},
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SaveFeedback(ctx, job.ID, domain.VariantFaithful, 1, true); err != nil {
		t.Fatalf("feedback 1: %v", err)
	}
	if err := store.SaveFeedback(ctx, job.ID, domain.VariantEnhanced, 0, true); err != nil {
		t.Fatalf("feedback 2: %v", err)
	}

	rows, err := store.GetFeedback(ctx, job.ID)
	if err != nil {
		t.Fatalf("get feedback: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		selected := row.Variant == domain.VariantEnhanced
		if row.Selected != selected {
			t.Fatalf("selection not exclusive: %+v", rows)
		}
	}

	top, err := store.TopPerformingPrompts(ctx, 50)
	if err != nil {
		t.Fatalf("top prompts: %v", err)
	}
	var sawSelected bool
	for _, p := range top {
		if p.JobID == job.ID && p.Variant == domain.VariantEnhanced {
			sawSelected = true
			if p.PromptText != "narrative two" {
				t.Fatalf("prompt text = %q", p.PromptText)
			}
		}
	}
	if !sawSelected {
		t.Fatalf("selected variant missing from learned prompts")
	}
}
