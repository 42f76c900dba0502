package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexstream/go-counsel-backend/internal/llm"
)

// Defaults for the thought buffer.
const (
	DefaultBufSize  = 240
	DefaultInterval = 1500 * time.Millisecond
)

// interruptedMsg is what clients see when the provider stream breaks; the
// provider detail goes into the returned error for logging.
const interruptedMsg = "The response stream was interrupted. Please try again."

type bufferState int

const (
	stateIdle bufferState = iota
	stateBuffering
	stateFlushed
)

// Mux converts provider deltas into the client event protocol. Answer
// fragments pass straight through; thinking fragments are coalesced until a
// sentence end or newline arrives, the buffer reaches BufSize characters,
// or Interval has elapsed since buffering began, whichever happens first.
type Mux struct {
	W        *Writer
	BufSize  int
	Interval time.Duration
	Now      func() time.Time

	state bufferState
	buf   strings.Builder
	since time.Time
}

// NewMux builds a Mux with default buffering thresholds.
func NewMux(w *Writer) *Mux {
	return &Mux{W: w, BufSize: DefaultBufSize, Interval: DefaultInterval, Now: time.Now}
}

// Pump relays deltas until the terminal stop or error delta and returns the
// accumulated answer text. Pending thoughts are flushed before the first
// answer fragment and again before complete, so event order always follows
// generation order. A provider error or a write failure terminates the
// relay; partial answer text is still returned so callers can persist it.
func (m *Mux) Pump(deltas <-chan llm.Delta) (string, error) {
	var answer strings.Builder
	for d := range deltas {
		switch d.Kind {
		case llm.DeltaStart:
			// message envelope opened; nothing to forward
		case llm.DeltaThinking:
			if err := m.thought(d.Text); err != nil {
				return answer.String(), err
			}
		case llm.DeltaText:
			if err := m.flushThoughts(); err != nil {
				return answer.String(), err
			}
			answer.WriteString(d.Text)
			if err := m.W.Send(Event{Type: EventAnswer, Content: d.Text}); err != nil {
				return answer.String(), err
			}
		case llm.DeltaStop:
			return answer.String(), m.finish()
		case llm.DeltaError:
			m.buf.Reset()
			m.state = stateFlushed
			_ = m.W.Send(Event{Type: EventError, Error: interruptedMsg})
			return answer.String(), fmt.Errorf("provider stream error: %s", d.Text)
		}
	}
	// the provider client guarantees a terminal delta; treat a bare close
	// as completion anyway
	return answer.String(), m.finish()
}

func (m *Mux) thought(text string) error {
	if text == "" {
		return nil
	}
	if m.state != stateBuffering {
		m.state = stateBuffering
		m.since = m.Now()
	}
	m.buf.WriteString(text)
	if m.shouldFlush(text) {
		return m.flushThoughts()
	}
	return nil
}

// shouldFlush evaluates the flush predicates against the fragment that just
// arrived. Timing is event-driven: the interval is only checked when a new
// fragment lands, so a silent provider never wakes anything up.
func (m *Mux) shouldFlush(fragment string) bool {
	if strings.ContainsAny(fragment, ".\n") {
		return true
	}
	if m.buf.Len() >= m.BufSize {
		return true
	}
	return m.Now().Sub(m.since) >= m.Interval
}

func (m *Mux) flushThoughts() error {
	if m.buf.Len() == 0 {
		return nil
	}
	ev := Event{Type: EventThought, Content: m.buf.String()}
	m.buf.Reset()
	m.state = stateFlushed
	return m.W.Send(ev)
}

// finish flushes any leftover thought and closes the stream with exactly
// one complete event.
func (m *Mux) finish() error {
	if err := m.flushThoughts(); err != nil {
		return err
	}
	return m.W.Send(Event{Type: EventComplete})
}
