package council

// --- Progress events ---
//
// The controller surfaces progress as an ordered event sequence rather
// than a single blocking call, so a transport layer can stream stage
// results as they land. Replayed events mark stages re-emitted from
// stored data during a resume.

// EventType discriminates progress events.
type EventType string

const (
	EventStageStart    EventType = "stage_start"
	EventStageComplete EventType = "stage_complete"
	EventRunError      EventType = "error"
	EventRunComplete   EventType = "complete"
)

// Event is one entry in a run's progress sequence.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id"`
	Stage    Stage     `json:"stage"`
	Payload  any       `json:"payload,omitempty"`
	Replayed bool      `json:"replayed,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// EventSink receives progress events in order. A nil sink is valid.
type EventSink func(Event)
