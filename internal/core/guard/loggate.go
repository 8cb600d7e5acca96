package guard

import (
	"sync"
)

// LogSink receives serialized command records. Appends are serialized by
// LogGate, so implementations need no locking of their own for ordering.
type LogSink interface {
	Append(record []byte) error
}

// LogGate orders appends to the write-ahead log. Records reach the sink in
// the order the gate was acquired.
type LogGate struct {
	mu       sync.Mutex
	sink     LogSink
	observer func(n int, err error)
}

// NewLogGate wraps sink. A nil sink accepts and discards every record.
func NewLogGate(sink LogSink) *LogGate {
	return &LogGate{sink: sink}
}

// OnAppend registers a callback run after each append, inside the gate.
func (g *LogGate) OnAppend(fn func(n int, err error)) {
	g.mu.Lock()
	g.observer = fn
	g.mu.Unlock()
}

func (g *LogGate) Append(record []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if g.sink != nil {
		err = g.sink.Append(record)
	}
	if g.observer != nil {
		g.observer(len(record), err)
	}
	return err
}
