package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

var streamEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stream_events_total",
		Help: "Server-sent events delivered to clients by event type.",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(streamEvents)
}

// Writer frames events as server-sent events over one connection in
// `data: <json>` lines, flushing after every event so frames reach the
// client as they happen. The first failure is sticky: once a write errors
// the connection is gone, and every later Send returns the same error.
type Writer struct {
	w     io.Writer
	flush func()
	err   error
}

// NewWriter wraps the response writer. flush may be nil when the underlying
// writer does not buffer.
func NewWriter(w io.Writer, flush func()) *Writer {
	return &Writer{w: w, flush: flush}
}

// Send marshals and writes one event frame.
func (w *Writer) Send(ev Event) error {
	if w.err != nil {
		return w.err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		w.err = err
		return err
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", b); err != nil {
		w.err = err
		return err
	}
	if w.flush != nil {
		w.flush()
	}
	streamEvents.WithLabelValues(ev.Type).Inc()
	return nil
}

// Err returns the sticky write error, if any.
func (w *Writer) Err() error { return w.err }
