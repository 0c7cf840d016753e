package printjob

import "time"

// EventType identifies a job notification.
type EventType string

const (
	EventStarted      EventType = "started"
	EventResumed      EventType = "resumed"
	EventProgress     EventType = "progress"
	EventLayerChanged EventType = "layer_changed"
	EventStatus       EventType = "status"
	EventPaused       EventType = "paused"
	EventContinued    EventType = "continued"
	EventCompleted    EventType = "completed"
	EventAborted      EventType = "aborted"
	EventFailed       EventType = "failed"
	EventRejected     EventType = "rejected"
)

// Event is a notification emitted by the orchestrator. Layer is the 0-based
// index of the layer the event refers to, or -1.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id,omitempty"`
	Time     time.Time `json:"time"`
	Layer    int       `json:"layer"`
	File     string    `json:"file,omitempty"`
	Total    int       `json:"total,omitempty"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
}

// EventHandler receives events. It is called from the goroutine that caused
// the event and must not block.
type EventHandler func(Event)
