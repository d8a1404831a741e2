// Package research implements the run orchestration core: planning a
// request into a fixed set of sub-tasks, executing them concurrently with
// per-task fault isolation, streaming stage progress to an observer, and
// synthesizing a final report that tolerates partial failure.
package research

import (
	"log/slog"
)

// Status is a progress event status.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Stage names for the fixed pipeline stages. Sub-task stages use the
// TaskKind value as their stage name.
const (
	StageParse      = "parse"
	StageSynthesize = "synthesize"
)

// Event is a single stage transition. Events are advisory: they never
// affect control flow, and a run proceeds identically with no observer.
type Event struct {
	// Run identifies the run the event belongs to. The engine fills it
	// in before the event reaches the caller's observer.
	Run string `json:"run,omitempty"`

	// Stage is the pipeline stage ("parse", "metrics", "positioning",
	// "synthesize").
	Stage string `json:"stage"`

	// Status is the stage's new status.
	Status Status `json:"status"`

	// Detail is free-text context for display.
	Detail string `json:"detail,omitempty"`
}

// Observer receives progress events in emission order.
type Observer interface {
	OnProgress(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnProgress calls f(e).
func (f ObserverFunc) OnProgress(e Event) { f(e) }

// emitterBuffer bounds the progress queue. Runs emit a dozen or so
// events, so senders never block in practice.
const emitterBuffer = 64

// Emitter delivers progress events to an observer through a bounded
// channel drained by a single goroutine. Worker goroutines emit
// concurrently; the observer only ever sees events from the drain
// goroutine, in a global order consistent with each emitter's own order.
// A nil observer disables delivery without changing emission semantics.
type Emitter struct {
	ch     chan Event
	done   chan struct{}
	logger *slog.Logger
}

// NewEmitter creates an emitter delivering to obs. obs may be nil.
// The caller must Close the emitter after the last Emit; Close waits
// for all queued events to reach the observer.
func NewEmitter(obs Observer, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Emitter{
		ch:     make(chan Event, emitterBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}

	go e.drain(obs)
	return e
}

// Emit queues a progress event. Safe for concurrent use. Must not be
// called after Close.
func (e *Emitter) Emit(stage string, status Status, detail string) {
	e.ch <- Event{Stage: stage, Status: status, Detail: detail}
}

// Close flushes remaining events to the observer and stops the drain
// goroutine. Returns after the observer has seen every emitted event.
func (e *Emitter) Close() {
	close(e.ch)
	<-e.done
}

func (e *Emitter) drain(obs Observer) {
	defer close(e.done)

	for event := range e.ch {
		if obs == nil {
			continue
		}
		e.deliver(obs, event)
	}
}

// deliver invokes the observer, containing panics so a broken observer
// cannot take down the run.
func (e *Emitter) deliver(obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("progress observer panicked",
				"stage", event.Stage,
				"status", event.Status,
				"panic", r)
		}
	}()

	obs.OnProgress(event)
}
