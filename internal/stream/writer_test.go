package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// decodeFrames parses raw SSE output back into events.
func decodeFrames(t *testing.T, raw string) []Event {
	t.Helper()
	var events []Event
	for _, frame := range strings.Split(raw, "\n\n") {
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("frame %q missing data prefix", frame)
		}
		var ev Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev); err != nil {
			t.Fatalf("frame %q: %v", frame, err)
		}
		events = append(events, ev)
	}
	return events
}

// failingWriter passes writes through to a buffer until the limit, then
// reports a broken connection.
type failingWriter struct {
	buf    bytes.Buffer
	limit  int
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.writes >= w.limit {
		return 0, errors.New("broken pipe")
	}
	w.writes++
	return w.buf.Write(p)
}

func TestWriter_FramesAndFlush(t *testing.T) {
	var buf bytes.Buffer
	flushes := 0
	w := NewWriter(&buf, func() { flushes++ })

	if err := w.Send(Event{Type: EventMetadata, Strategy: "simple", Model: "fast-1"}); err != nil {
		t.Fatalf("send metadata: %v", err)
	}
	if err := w.Send(Event{Type: EventAnswer, Content: "Hello"}); err != nil {
		t.Fatalf("send answer: %v", err)
	}

	events := decodeFrames(t, buf.String())
	if len(events) != 2 || events[0].Type != EventMetadata || events[1].Type != EventAnswer {
		t.Fatalf("events = %#v", events)
	}
	if events[0].Strategy != "simple" || events[0].Model != "fast-1" {
		t.Fatalf("metadata = %#v", events[0])
	}
	if flushes != 2 {
		t.Fatalf("flushes = %d, want 2", flushes)
	}
	if strings.Contains(buf.String(), `"error"`) {
		t.Fatalf("empty fields serialized: %s", buf.String())
	}
}

func TestWriter_StickyError(t *testing.T) {
	fw := &failingWriter{limit: 1}
	w := NewWriter(fw, nil)

	if err := w.Send(Event{Type: EventAnswer, Content: "a"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	err := w.Send(Event{Type: EventAnswer, Content: "b"})
	if err == nil {
		t.Fatalf("second send succeeded on a broken connection")
	}
	if again := w.Send(Event{Type: EventComplete}); !errors.Is(again, err) && again.Error() != err.Error() {
		t.Fatalf("sticky error changed: %v vs %v", again, err)
	}
	if w.Err() == nil {
		t.Fatalf("Err() = nil after failure")
	}
	if fw.writes != 1 {
		t.Fatalf("writes after failure = %d, want 1", fw.writes)
	}
}
