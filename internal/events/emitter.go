package events

import (
	"fmt"
	"io"
	"sync"

	"aetherlens/pkg/logging"
)

// Sink consumes pipeline events. Implementations must tolerate being called
// from the emitter's delivery goroutine.
type Sink interface {
	Emit(Event)
}

// CallbackSink adapts a plain function into a Sink. It is used to drive the
// interactive dashboard.
type CallbackSink func(Event)

// Emit implements Sink.
func (f CallbackSink) Emit(ev Event) { f(ev) }

// JSONLinesSink writes each event as one JSON line, the machine-readable
// stream format.
type JSONLinesSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLinesSink creates a sink writing to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{w: w}
}

// Emit implements Sink.
func (s *JSONLinesSink) Emit(ev Event) {
	data, err := Marshal(ev)
	if err != nil {
		logging.Error("Events", err, "failed to encode %s event", ev.Type())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, string(data))
}

const sinkBufferSize = 256

// sinkWorker owns the delivery queue for one sink. Each sink drains its own
// queue so a stalled sink never blocks the pipeline or other sinks.
type sinkWorker struct {
	sink Sink
	ch   chan Event
	done chan struct{}
}

func newSinkWorker(sink Sink) *sinkWorker {
	w := &sinkWorker{
		sink: sink,
		ch:   make(chan Event, sinkBufferSize),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for ev := range w.ch {
			w.sink.Emit(ev)
		}
	}()
	return w
}

// Emitter fans a single Emit call out to all registered sinks without
// blocking the caller. Delivery order is preserved per sink; no ordering is
// guaranteed across sinks.
type Emitter struct {
	mu      sync.Mutex
	workers []*sinkWorker
	closed  bool
	dropped int64
}

// NewEmitter creates an emitter for the given sinks.
func NewEmitter(sinks ...Sink) *Emitter {
	e := &Emitter{}
	for _, s := range sinks {
		e.AddSink(s)
	}
	return e
}

// AddSink registers another sink. Events emitted before registration are not
// replayed.
func (e *Emitter) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.workers = append(e.workers, newSinkWorker(sink))
}

// Emit queues ev for every sink. A sink whose queue is full drops the event
// rather than stalling the pipeline.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, w := range e.workers {
		select {
		case w.ch <- ev:
		default:
			e.dropped++
			logging.Warn("Events", "sink queue full, dropping %s event", ev.Type())
		}
	}
}

// Close stops accepting events and waits for every sink to drain its queue.
// It is safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	workers := e.workers
	e.mu.Unlock()

	for _, w := range workers {
		close(w.ch)
		<-w.done
	}
}
