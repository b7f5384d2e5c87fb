package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/events"
	httpapi "studio/internal/http"
	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/pipeline"
	"studio/internal/storage"
)

type stubResearcher struct{}

func (stubResearcher) Research(ctx context.Context, job *domain.Job) (*domain.Research, error) {
	return &domain.Research{Mood: "calm"}, nil
}

type stubArchitect struct{}

func (stubArchitect) CraftPrompts(ctx context.Context, job *domain.Job) ([]domain.PromptVariant, error) {
	return []domain.PromptVariant{{Variant: domain.VariantFaithful, Label: "Faithful", NarrativePrompt: "p"}}, nil
}

// stubGenerator writes real files so download has something to zip.
type stubGenerator struct {
	files *storage.FileStore
}

func (g stubGenerator) Generate(ctx context.Context, job *domain.Job) ([]domain.GeneratedImage, error) {
	var out []domain.GeneratedImage
	for _, p := range job.Prompts {
		key, err := g.files.Write(ctx, storage.ImageKey(job.ID, string(p.Variant)), []byte("\x89PNG\r\n\x1a\nimg"))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.GeneratedImage{Variant: p.Variant, FilePath: key, Success: true})
	}
	return out, nil
}

func (g stubGenerator) Refine(ctx context.Context, job *domain.Job, variant domain.Variant, instruction string) (*domain.Refinement, error) {
	if img, ok := job.Image(variant); !ok || !img.Success {
		return nil, domain.ErrNotFound
	}
	key, err := g.files.Write(ctx, storage.RefinementKey(job.ID, string(variant), len(job.Refinements)+1), []byte("\x89PNG\r\n\x1a\nref"))
	if err != nil {
		return nil, err
	}
	return &domain.Refinement{Variant: variant, Instruction: instruction, FilePath: key, CreatedAt: time.Now().UTC()}, nil
}

type stubCritic struct{}

func (stubCritic) Evaluate(ctx context.Context, job *domain.Job) (*domain.Evaluation, error) {
	return &domain.Evaluation{Summary: "done", Winner: domain.VariantFaithful}, nil
}

type env struct {
	router     http.Handler
	store      *repo.MemoryJobStore
	supervisor *pipeline.Supervisor
	bus        *events.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := repo.NewMemoryJobStore()
	bus := events.NewBus(logger)
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	orc := pipeline.NewOrchestrator(store, bus, stubResearcher{}, stubArchitect{}, stubGenerator{files: files}, stubCritic{}, logger)
	supervisor := pipeline.NewSupervisor(logger)
	app := &handlers.App{
		Store:              store,
		Pipeline:           orc,
		Supervisor:         supervisor,
		Broker:             handlers.NewBroker(bus, logger),
		Files:              files,
		Logger:             logger,
		DefaultAspectRatio: "1:1",
		DefaultResolution:  "1024x1024",
	}
	cfg := &infra.Config{
		Port:            "8080",
		DefaultLocale:   "en",
		RateLimitPerMin: 10000,
	}
	return &env{router: httpapi.NewRouter(app, cfg), store: store, supervisor: supervisor, bus: bus}
}

func (e *env) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return v
}

// createAndWait submits a job and waits for its background run to finish.
func (e *env) createAndWait(t *testing.T, prompt string) *domain.Job {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/jobs", `{"prompt":"`+prompt+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	job := decode[*domain.Job](t, rec)
	e.supervisor.Wait()
	final, err := e.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	return final
}

func TestCreateJobRunsPipeline(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/jobs", `{"prompt":"a lighthouse at dusk"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	job := decode[*domain.Job](t, rec)
	if job.ID == "" {
		t.Fatalf("missing job id")
	}
	if job.Request.AspectRatio != "1:1" {
		t.Fatalf("aspect default not applied: %q", job.Request.AspectRatio)
	}

	// Accepted means readable right away, even if still queued.
	if rec := e.do(t, http.MethodGet, "/api/jobs/"+job.ID+"/", ""); rec.Code != http.StatusOK {
		t.Fatalf("immediate get = %d", rec.Code)
	}

	e.supervisor.Wait()
	final, err := e.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if final.Stage != domain.StageComplete {
		t.Fatalf("stage = %s, want complete", final.Stage)
	}
}

func TestCreateJobValidation(t *testing.T) {
	e := newEnv(t)
	for name, body := range map[string]string{
		"empty prompt": `{"prompt":"  "}`,
		"bad json":     `{`,
	} {
		if rec := e.do(t, http.MethodPost, "/api/jobs", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", name, rec.Code)
		}
	}
}

func TestGetJobNotFound(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodGet, "/api/jobs/nope/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListJobsFilters(t *testing.T) {
	e := newEnv(t)
	e.createAndWait(t, "red barn in snow")
	e.createAndWait(t, "city skyline at night")

	all := decode[map[string][]*domain.Job](t, e.do(t, http.MethodGet, "/api/jobs", ""))
	if len(all["jobs"]) != 2 {
		t.Fatalf("jobs = %d, want 2", len(all["jobs"]))
	}

	filtered := decode[map[string][]*domain.Job](t, e.do(t, http.MethodGet, "/api/jobs?q=barn", ""))
	if len(filtered["jobs"]) != 1 || !strings.Contains(filtered["jobs"][0].Request.Prompt, "barn") {
		t.Fatalf("filtered = %+v", filtered["jobs"])
	}

	active := decode[map[string][]*domain.Job](t, e.do(t, http.MethodGet, "/api/jobs?active=true", ""))
	if len(active["jobs"]) != 0 {
		t.Fatalf("active = %d, want 0 once runs finished", len(active["jobs"]))
	}
}

func TestFeedbackRoundTrip(t *testing.T) {
	e := newEnv(t)
	job := e.createAndWait(t, "feedback subject")

	rec := e.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/feedback", `{"variant":"v1-faithful","rating":1,"selected":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save feedback = %d: %s", rec.Code, rec.Body.String())
	}

	got := decode[map[string][]domain.Feedback](t, e.do(t, http.MethodGet, "/api/jobs/"+job.ID+"/feedback", ""))
	if len(got["feedback"]) != 1 || got["feedback"][0].Rating != 1 || !got["feedback"][0].Selected {
		t.Fatalf("feedback = %+v", got["feedback"])
	}

	top := decode[map[string][]domain.LearnedPrompt](t, e.do(t, http.MethodGet, "/api/prompts/top", ""))
	if len(top["prompts"]) != 1 {
		t.Fatalf("top prompts = %d, want 1", len(top["prompts"]))
	}
}

func TestFeedbackValidation(t *testing.T) {
	e := newEnv(t)
	job := e.createAndWait(t, "x")

	cases := map[string]struct {
		body string
		want int
	}{
		"unknown variant": {`{"variant":"v9-made-up","rating":1}`, http.StatusBadRequest},
		"bad rating":      {`{"variant":"v1-faithful","rating":5}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		if rec := e.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/feedback", tc.body); rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", name, rec.Code, tc.want)
		}
	}
	if rec := e.do(t, http.MethodPost, "/api/jobs/missing/feedback", `{"variant":"v1-faithful","rating":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job: status = %d", rec.Code)
	}
}

func TestRefineEndpoint(t *testing.T) {
	e := newEnv(t)
	job := e.createAndWait(t, "refinable")

	rec := e.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/refine", `{"variant":"v1-faithful","instruction":"warmer light"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("refine = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	accepted := decode[map[string]string](t, rec)
	if accepted["status"] != "accepted" || accepted["job_id"] != job.ID {
		t.Fatalf("body = %+v", accepted)
	}

	// The edit runs in the background and lands on the job.
	e.supervisor.Wait()
	refined, err := e.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(refined.Refinements) != 1 || refined.Refinements[0].Variant != domain.VariantFaithful {
		t.Fatalf("refinements = %+v", refined.Refinements)
	}
	if refined.Stage != domain.StageComplete {
		t.Fatalf("refinement changed the stage: %s", refined.Stage)
	}

	if rec := e.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/refine", `{"variant":"v1-faithful","instruction":" "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty instruction = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/jobs/missing/refine", `{"variant":"v1-faithful","instruction":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job = %d", rec.Code)
	}
	// v2 was never generated by the single-variant stub architect.
	if rec := e.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/refine", `{"variant":"v2-enhanced","instruction":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing variant = %d", rec.Code)
	}
}

func TestDownloadJob(t *testing.T) {
	e := newEnv(t)
	job := e.createAndWait(t, "downloadable")

	rec := e.do(t, http.MethodGet, "/api/jobs/"+job.ID+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("body is not a zip archive")
	}

	if rec := e.do(t, http.MethodGet, "/api/jobs/missing/download", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestBrokerForwardsBusEvents(t *testing.T) {
	e := newEnv(t)
	broker := handlers.NewBroker(e.bus, zerolog.New(io.Discard))
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	e.bus.Emit(context.Background(), events.New(events.JobStarted, "job-9", map[string]any{"prompt": "p"}))

	select {
	case frame := <-ch:
		text := string(frame)
		if !strings.HasPrefix(text, "event: job_started\ndata: ") || !strings.HasSuffix(text, "\n\n") {
			t.Fatalf("frame = %q", text)
		}
		if !strings.Contains(text, `"job_id":"job-9"`) {
			t.Fatalf("frame missing payload: %q", text)
		}
	default:
		t.Fatalf("no frame delivered")
	}
}
