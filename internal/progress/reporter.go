package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Func is a caller-supplied progress callback.
type Func func(Event)

// Reporter normalizes raw events for one request and hands them to the
// caller's callback synchronously and in order. A panicking callback is
// recovered and logged; recognition continues.
type Reporter struct {
	norm   *Normalizer
	sink   Func
	logger *slog.Logger
	mu     sync.Mutex
}

// NewReporter creates a reporter; sink may be nil.
func NewReporter(sink Func, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{norm: NewNormalizer(), sink: sink, logger: logger}
}

// Report normalizes raw and delivers the result.
func (r *Reporter) Report(strategy string, raw RawEvent) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportLocked(strategy, raw)
}

func (r *Reporter) reportLocked(strategy string, raw RawEvent) Event {
	ev := r.norm.normalize(raw, strategy)
	r.deliver(ev)
	return ev
}

// Percent returns the last reported percent.
func (r *Reporter) Percent() int {
	return r.norm.Percent()
}

func (r *Reporter) deliver(ev Event) {
	if r.sink == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("progress callback panicked", "panic", p, "stage", ev.Stage.String())
		}
	}()
	r.sink(ev)
}

// Attempt is the event channel of one strategy attempt. After Detach,
// late events from an abandoned engine operation are dropped.
type Attempt struct {
	r        *Reporter
	strategy string
	detached atomic.Bool
}

// Begin opens the event channel for strategy.
func (r *Reporter) Begin(strategy string) *Attempt {
	return &Attempt{r: r, strategy: strategy}
}

// Emit reports raw unless the attempt was detached.
func (a *Attempt) Emit(raw RawEvent) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if a.detached.Load() {
		return
	}
	a.r.reportLocked(a.strategy, raw)
}

// Emitter returns the attempt as an engine-facing Emitter.
func (a *Attempt) Emitter() Emitter {
	return a.Emit
}

// Detach stops forwarding events for this attempt. No event of the
// attempt is delivered after Detach returns.
func (a *Attempt) Detach() {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.detached.Store(true)
}
