package events

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects events and can simulate a slow consumer.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	delay  time.Duration
}

func (r *recordingSink) Emit(ev Event) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestEmitter_FanOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	em := NewEmitter(a, b)

	em.Emit(NewLog("one"))
	em.Emit(NewLog("two"))
	em.Close()

	assert.Len(t, a.snapshot(), 2)
	assert.Len(t, b.snapshot(), 2)
}

func TestEmitter_PerSinkOrdering(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)

	for i := 0; i < 50; i++ {
		em.Emit(NewTestProgress("t", string(rune('a'+i%26))))
	}
	em.Close()

	got := sink.snapshot()
	require.Len(t, got, 50)
	for i, ev := range got {
		prog, ok := ev.(TestProgress)
		require.True(t, ok)
		assert.Equal(t, string(rune('a'+i%26)), prog.StatusText)
	}
}

func TestEmitter_SlowSinkDoesNotBlockCaller(t *testing.T) {
	slow := &recordingSink{delay: 50 * time.Millisecond}
	em := NewEmitter(slow)

	start := time.Now()
	for i := 0; i < 10; i++ {
		em.Emit(NewLog("x"))
	}
	elapsed := time.Since(start)
	em.Close()

	// Ten emits against a 50ms-per-event sink would take 500ms if the
	// caller were blocked on delivery.
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestEmitter_EmitAfterCloseIsNoop(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)
	em.Close()

	em.Emit(NewLog("late"))
	em.Close()

	assert.Empty(t, sink.snapshot())
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLinesSink(&buf)

	sink.Emit(NewLog("hello"))
	sink.Emit(NewLog("world"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"log"`)
	assert.Contains(t, lines[0], `"hello"`)
	assert.Contains(t, lines[1], `"world"`)
}

func TestCallbackSink(t *testing.T) {
	var got Event
	sink := CallbackSink(func(ev Event) { got = ev })

	sink.Emit(NewLog("cb"))

	require.NotNil(t, got)
	assert.Equal(t, TypeLog, got.Type())
}
