package streaming

import "context"

// ProgressEvent is a real-time event emitted during a generation run, once
// per stage transition. Percent is monotonic within a run; a retry updates
// the percent of the same step rather than re-sending the transition.
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	Step    string `json:"step,omitempty"`
	Percent int    `json:"percent"`
	Type    string `json:"event_type"`
	Payload any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID string   `json:"run_id,omitempty"`
	Types []string `json:"event_types,omitempty"`
}

// ProgressHub provides pub/sub for run progress events, consumable by any
// UI layer.
type ProgressHub interface {
	Publish(ctx context.Context, event ProgressEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan ProgressEvent, func(), error)
}
