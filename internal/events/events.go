// Package events carries typed pipeline lifecycle notifications between the
// orchestrator and its presentation layers. The bus is fire-and-forget: the
// job store stays authoritative and late subscribers miss prior events.
package events

import (
	"encoding/json"
	"time"
)

// Type categorizes a lifecycle event.
type Type string

const (
	// Pipeline lifecycle.
	JobStarted   Type = "job_started"
	StageChanged Type = "stage_changed"
	JobCompleted Type = "job_completed"
	JobFailed    Type = "job_failed"

	// Agent-level.
	AgentMessage   Type = "agent_message"
	ImageGenerated Type = "image_generated"
	VariantScored  Type = "variant_scored"
	ImageRefined   Type = "image_refined"

	// Generation progress (current index / total).
	Progress Type = "progress"
)

// Event is an immutable notification about one job at one moment.
type Event struct {
	Type      Type           `json:"type"`
	JobID     string         `json:"job_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event stamped with the current time.
func New(t Type, jobID string, data map[string]any) Event {
	return Event{Type: t, JobID: jobID, Data: data, Timestamp: time.Now().UTC()}
}

// JSON renders the event for wire transports (SSE, websockets).
func (e Event) JSON() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte("{}")
	}
	return b
}
