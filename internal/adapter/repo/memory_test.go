package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio/internal/domain"
)

func newTestJob(prompt string) *domain.Job {
	return domain.NewJob(domain.Request{
		Prompt:      prompt,
		AspectRatio: "1:1",
		Resolution:  "1024x1024",
	})
}

func TestMemoryStoreCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	job := newTestJob("a red fox in the snow")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Request.Prompt != job.Request.Prompt {
		t.Fatalf("prompt = %q, want %q", got.Request.Prompt, job.Request.Prompt)
	}

	got.Stage = domain.StageResearch
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if reloaded.Stage != domain.StageResearch {
		t.Fatalf("stage = %q, want %q", reloaded.Stage, domain.StageResearch)
	}
}

func TestMemoryStoreGetUnknownJob(t *testing.T) {
	store := NewMemoryJobStore()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := store.Update(context.Background(), newTestJob("x")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	job := newTestJob("mutate me")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := store.Get(ctx, job.ID)
	first.Request.Prompt = "changed outside the store"

	second, _ := store.Get(ctx, job.ID)
	if second.Request.Prompt != "mutate me" {
		t.Fatalf("store leaked mutable state: %q", second.Request.Prompt)
	}
}

func TestMemoryStoreListActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	active := newTestJob("still running")
	active.Stage = domain.StageGenerating
	done := newTestJob("finished")
	done.Stage = domain.StageComplete
	failed := newTestJob("broken")
	failed.Stage = domain.StageFailed

	for _, j := range []*domain.Job{active, done, failed} {
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("active = %v, want only %s", got, active.ID)
	}
}

func TestMemoryStoreSearchIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	job := newTestJob("A Majestic Dragon over the city")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Search(ctx, "majestic dragon")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("search hits = %d, want 1", len(got))
	}
	if got, _ := store.Search(ctx, "unicorn"); len(got) != 0 {
		t.Fatalf("unexpected hits for unicorn")
	}
}

func TestMemoryStoreListAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	older := newTestJob("older")
	older.Request.CreatedAt = time.Now().Add(-time.Hour)
	newer := newTestJob("newer")
	newer.Request.CreatedAt = time.Now()

	if err := store.Create(ctx, older); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newer); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID {
		t.Fatalf("order wrong, first = %s, want %s", got[0].ID, newer.ID)
	}
}

func TestSaveFeedbackSelectedIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	job := newTestJob("feedback target")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SaveFeedback(ctx, job.ID, domain.VariantFaithful, 1, true); err != nil {
		t.Fatalf("save feedback: %v", err)
	}
	if err := store.SaveFeedback(ctx, job.ID, domain.VariantEnhanced, 1, true); err != nil {
		t.Fatalf("save feedback: %v", err)
	}

	rows, err := store.GetFeedback(ctx, job.ID)
	if err != nil {
		t.Fatalf("get feedback: %v", err)
	}
	selected := 0
	for _, fb := range rows {
		if fb.Selected {
			selected++
			if fb.Variant != domain.VariantEnhanced {
				t.Fatalf("selected variant = %s, want %s", fb.Variant, domain.VariantEnhanced)
			}
		}
	}
	if selected != 1 {
		t.Fatalf("selected count = %d, want 1", selected)
	}
}

func TestSaveFeedbackRejectsBadRating(t *testing.T) {
	store := NewMemoryJobStore()
	err := store.SaveFeedback(context.Background(), "job", domain.VariantFaithful, 5, false)
	if !errors.Is(err, domain.ErrInvalidRating) {
		t.Fatalf("err = %v, want ErrInvalidRating", err)
	}
}

func TestSaveFeedbackUpsertsPerVariant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	job := newTestJob("upsert")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SaveFeedback(ctx, job.ID, domain.VariantFaithful, -1, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveFeedback(ctx, job.ID, domain.VariantFaithful, 1, false); err != nil {
		t.Fatalf("save again: %v", err)
	}

	rows, _ := store.GetFeedback(ctx, job.ID)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 (upsert)", len(rows))
	}
	if rows[0].Rating != 1 {
		t.Fatalf("rating = %d, want 1", rows[0].Rating)
	}
}

func TestTopPerformingPromptsOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	job := newTestJob("sunset over mountains")
	job.Prompts = []domain.PromptVariant{
		{Variant: domain.VariantFaithful, NarrativePrompt: "faithful sunset"},
		{Variant: domain.VariantBoldCreative, NarrativePrompt: "bold sunset"},
		{Variant: domain.VariantEnhanced, NarrativePrompt: "enhanced sunset"},
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SaveFeedback(ctx, job.ID, domain.VariantFaithful, 1, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveFeedback(ctx, job.ID, domain.VariantBoldCreative, 1, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Negative feedback must not surface.
	if err := store.SaveFeedback(ctx, job.ID, domain.VariantEnhanced, -1, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.TopPerformingPrompts(ctx, 10)
	if err != nil {
		t.Fatalf("top prompts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("learned prompts = %d, want 2", len(got))
	}
	if !got[0].Selected || got[0].Variant != domain.VariantBoldCreative {
		t.Fatalf("first = %+v, want selected bold variant", got[0])
	}
	if got[0].PromptText != "bold sunset" {
		t.Fatalf("prompt text = %q, want joined narrative prompt", got[0].PromptText)
	}
	if got[1].Variant != domain.VariantFaithful {
		t.Fatalf("second = %+v, want faithful variant", got[1])
	}
}

func TestTopPerformingPromptsLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	for i := 0; i < 4; i++ {
		job := newTestJob("batch prompt")
		job.Prompts = []domain.PromptVariant{{Variant: domain.VariantFaithful, NarrativePrompt: "p"}}
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := store.SaveFeedback(ctx, job.ID, domain.VariantFaithful, 1, false); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := store.TopPerformingPrompts(ctx, 2)
	if err != nil {
		t.Fatalf("top prompts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("learned prompts = %d, want limit 2", len(got))
	}
}
