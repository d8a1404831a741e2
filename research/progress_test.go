package research_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/scout/research"
)

// eventCollector records progress events for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []research.Event
}

func (c *eventCollector) OnProgress(e research.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCollector) all() []research.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]research.Event(nil), c.events...)
}

// byStage returns the events for one stage, in emission order.
func (c *eventCollector) byStage(stage string) []research.Event {
	var out []research.Event
	for _, e := range c.all() {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// statuses extracts the status sequence from a slice of events.
func statuses(events []research.Event) []research.Status {
	out := make([]research.Status, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func TestEmitter_DeliversInOrder(t *testing.T) {
	collector := &eventCollector{}
	emitter := research.NewEmitter(collector, nil)

	emitter.Emit("parse", research.StatusPending, "queued")
	emitter.Emit("parse", research.StatusRunning, "working")
	emitter.Emit("parse", research.StatusDone, "finished")
	emitter.Close()

	events := collector.all()
	require.Len(t, events, 3)
	assert.Equal(t, []research.Status{
		research.StatusPending,
		research.StatusRunning,
		research.StatusDone,
	}, statuses(events))
	assert.Equal(t, "queued", events[0].Detail)
}

func TestEmitter_NilObserverIsNoOp(t *testing.T) {
	emitter := research.NewEmitter(nil, nil)

	emitter.Emit("parse", research.StatusRunning, "working")
	emitter.Emit("metrics", research.StatusDone, "finished")
	emitter.Close()
	// Nothing to assert: reaching here without blocking or panicking is the point.
}

func TestEmitter_ConcurrentSendersKeepPerSenderOrder(t *testing.T) {
	collector := &eventCollector{}
	emitter := research.NewEmitter(collector, nil)

	var wg sync.WaitGroup
	for _, stage := range []string{"metrics", "positioning"} {
		wg.Add(1)
		go func(stage string) {
			defer wg.Done()
			emitter.Emit(stage, research.StatusRunning, "")
			emitter.Emit(stage, research.StatusDone, "")
		}(stage)
	}
	wg.Wait()
	emitter.Close()

	for _, stage := range []string{"metrics", "positioning"} {
		got := statuses(collector.byStage(stage))
		assert.Equal(t, []research.Status{research.StatusRunning, research.StatusDone}, got,
			"per-stage order must survive concurrent emission for %s", stage)
	}
	assert.Len(t, collector.all(), 4)
}

func TestEmitter_ObserverPanicContained(t *testing.T) {
	calls := 0
	bad := research.ObserverFunc(func(e research.Event) {
		calls++
		if calls == 1 {
			panic("observer bug")
		}
	})

	emitter := research.NewEmitter(bad, nil)
	emitter.Emit("parse", research.StatusRunning, "")
	emitter.Emit("parse", research.StatusDone, "")
	emitter.Close()

	assert.Equal(t, 2, calls, "delivery continues after an observer panic")
}

func TestEmitter_CloseFlushesBacklog(t *testing.T) {
	collector := &eventCollector{}
	emitter := research.NewEmitter(collector, nil)

	for i := 0; i < 20; i++ {
		emitter.Emit("metrics", research.StatusRunning, fmt.Sprintf("step %d", i))
	}
	emitter.Close()

	assert.Len(t, collector.all(), 20, "Close returns only after every event is delivered")
}
