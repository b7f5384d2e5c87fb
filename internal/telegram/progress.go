package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"studio/internal/events"
)

// messenger is the slice of the Telegram client the tracker needs.
type messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

// ProgressTracker mirrors one job's pipeline events into a single chat
// message that gets edited in place. Renders identical to the previous one
// are skipped since Telegram rejects no-op edits.
type ProgressTracker struct {
	client messenger
	bus    *events.Bus
	logger zerolog.Logger

	jobID  string
	chatID int64

	mu         sync.Mutex
	sub        *events.Subscription
	messageID  int64
	stage      string
	current    int
	total      int
	recent     []string
	lastRender string
	done       bool
}

const recentMessageWindow = 5

// TrackProgress starts mirroring events for jobID into chatID. The tracker
// unsubscribes itself once the job reaches a terminal event.
func TrackProgress(ctx context.Context, client messenger, bus *events.Bus, logger zerolog.Logger, jobID string, chatID int64) *ProgressTracker {
	t := &ProgressTracker{
		client: client,
		bus:    bus,
		logger: logger,
		jobID:  jobID,
		chatID: chatID,
		stage:  "queued",
	}
	t.sub = bus.Subscribe(t.handle)
	t.render(ctx)
	return t
}

func (t *ProgressTracker) handle(ctx context.Context, e events.Event) error {
	if e.JobID != t.jobID {
		return nil
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}

	switch e.Type {
	case events.StageChanged:
		if to, ok := e.Data["to"].(string); ok {
			t.stage = to
		}
		t.current, t.total = 0, 0
	case events.Progress:
		t.current = intField(e.Data, "current")
		t.total = intField(e.Data, "total")
	case events.AgentMessage:
		agent, _ := e.Data["agent"].(string)
		msg, _ := e.Data["message"].(string)
		t.pushRecent(fmt.Sprintf("%s: %s", agent, msg))
	case events.ImageGenerated:
		variant, _ := e.Data["variant"].(string)
		t.pushRecent(fmt.Sprintf("rendered %s", variant))
	case events.VariantScored:
		variant, _ := e.Data["variant"].(string)
		t.pushRecent(fmt.Sprintf("scored %s (%.1f/40)", variant, floatField(e.Data, "total")))
	case events.JobCompleted:
		t.stage = "complete"
		t.done = true
	case events.JobFailed:
		if op, _ := e.Data["operation"].(string); op != "refine" {
			t.stage = "failed"
			t.done = true
		}
	}
	finished := t.done
	t.mu.Unlock()

	t.render(ctx)
	if finished {
		t.bus.Unsubscribe(t.sub)
	}
	return nil
}

// Stop detaches the tracker without waiting for a terminal event, for callers
// whose run errored before the pipeline could emit one. Idempotent.
func (t *ProgressTracker) Stop() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.bus.Unsubscribe(t.sub)
}

func (t *ProgressTracker) pushRecent(line string) {
	t.recent = append(t.recent, line)
	if len(t.recent) > recentMessageWindow {
		t.recent = t.recent[len(t.recent)-recentMessageWindow:]
	}
}

// render formats the current state and pushes it to the chat, sending the
// first message and editing thereafter.
func (t *ProgressTracker) render(ctx context.Context) {
	t.mu.Lock()
	text := t.format()
	if text == t.lastRender {
		t.mu.Unlock()
		return
	}
	t.lastRender = text
	messageID := t.messageID
	t.mu.Unlock()

	if messageID == 0 {
		id, err := t.client.SendMessage(ctx, t.chatID, text)
		if err != nil {
			t.logger.Warn().Err(err).Str("job_id", t.jobID).Msg("telegram: progress send failed")
			return
		}
		t.mu.Lock()
		t.messageID = id
		t.mu.Unlock()
		return
	}
	if err := t.client.EditMessageText(ctx, t.chatID, messageID, text); err != nil {
		t.logger.Warn().Err(err).Str("job_id", t.jobID).Msg("telegram: progress edit failed")
	}
}

func (t *ProgressTracker) format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s\n", t.jobID)
	fmt.Fprintf(&b, "Stage: %s", stageLabel(t.stage))
	if t.total > 0 {
		fmt.Fprintf(&b, " (%d/%d)", t.current, t.total)
	}
	if len(t.recent) > 0 {
		b.WriteString("\n\n")
		for _, line := range t.recent {
			fmt.Fprintf(&b, "• %s\n", line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stageLabel(stage string) string {
	switch stage {
	case "queued":
		return "queued ⏳"
	case "research":
		return "researching 🔍"
	case "prompt_crafting":
		return "crafting prompts ✍️"
	case "generating":
		return "generating 🎨"
	case "evaluating":
		return "evaluating 🧐"
	case "complete":
		return "complete ✅"
	case "failed":
		return "failed ❌"
	}
	return stage
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
