package progress

import (
	"fmt"
	"sync"
)

// RawEvent is an engine-specific status update. Progress is the fraction
// of the current status step, in [0, 1].
type RawEvent struct {
	Status   string
	Progress float64
}

// Event is a normalized progress update.
type Event struct {
	Stage    Stage  `json:"stage"`
	Percent  int    `json:"percent"`
	Message  string `json:"message"`
	Strategy string `json:"strategy,omitempty"`
}

// Emitter receives raw events from an engine. A nil Emitter drops events.
type Emitter func(RawEvent)

// Emit sends a raw event when e is non-nil.
func (e Emitter) Emit(status string, fraction float64) {
	if e != nil {
		e(RawEvent{Status: status, Progress: fraction})
	}
}

// Normalizer converts raw events into Events whose percent never
// decreases. It is safe for concurrent use; one normalizer serves one
// request.
type Normalizer struct {
	mu      sync.Mutex
	stage   Stage
	percent int
}

// NewNormalizer returns a normalizer at 0%.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize maps raw onto the stage scale. Unknown statuses keep the
// previous stage. Neither stage nor percent goes back, so the reported
// stage always contains the percent.
func (n *Normalizer) Normalize(raw RawEvent) Event {
	return n.normalize(raw, "")
}

func (n *Normalizer) normalize(raw RawEvent, strategy string) Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	stage, ok := StageFor(raw.Status)
	if !ok {
		stage = n.stage
	}
	lo, hi := stage.Range()
	pct := lo + int(clamp01(raw.Progress)*float64(hi-lo))
	if pct < n.percent {
		pct = n.percent
	}
	if stage < n.stage {
		stage = n.stage
	}
	if pct > 100 {
		pct = 100
	}
	n.stage = stage
	n.percent = pct

	msg := stage.Label()
	if strategy != "" {
		msg = fmt.Sprintf("%s (%s)", msg, strategy)
	}
	return Event{Stage: stage, Percent: pct, Message: msg, Strategy: strategy}
}

// Percent returns the last reported percent.
func (n *Normalizer) Percent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.percent
}

func clamp01(f float64) float64 {
	switch {
	case f != f: // NaN
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
