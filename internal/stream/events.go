// Package stream frames chat responses as server-sent events and coalesces
// model thinking fragments into readable thought events.
package stream

// Event types, in the order a well-formed stream may emit them: one
// metadata event, any number of thought and answer events, then exactly one
// complete or error event.
const (
	EventMetadata = "metadata"
	EventThought  = "thought"
	EventAnswer   = "answer"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one frame of the response stream. Fields are populated per type:
// metadata carries strategy, model, and sources; thought and answer carry
// content; error carries a client-safe message.
type Event struct {
	Type     string   `json:"type"`
	Strategy string   `json:"strategy,omitempty"`
	Model    string   `json:"model,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Content  string   `json:"content,omitempty"`
	Error    string   `json:"error,omitempty"`
}
