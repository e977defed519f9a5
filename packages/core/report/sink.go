// Package report defines the lifecycle notifications emitted while a plan
// runs. Sinks are called from every orchestrator of a run, possibly
// concurrently, and must be safe for concurrent use.
package report

import (
	"sync"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
)

// Sink receives unit lifecycle events keyed by phase.
type Sink interface {
	Started(phase unit.Phase, u *unit.Unit)
	Completed(phase unit.Phase, u *unit.Unit)
	Failed(phase unit.Phase, u *unit.Unit, message string)
	Errored(phase unit.Phase, u *unit.Unit, message string)
	Skipped(phase unit.Phase, u *unit.Unit, message string)
}

// Flushable is implemented by sinks that buffer output until the run ends.
type Flushable interface {
	Flush() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Started(unit.Phase, *unit.Unit)         {}
func (Nop) Completed(unit.Phase, *unit.Unit)       {}
func (Nop) Failed(unit.Phase, *unit.Unit, string)  {}
func (Nop) Errored(unit.Phase, *unit.Unit, string) {}
func (Nop) Skipped(unit.Phase, *unit.Unit, string) {}

// Multi fans events out to several sinks in order.
type Multi []Sink

func (m Multi) Started(p unit.Phase, u *unit.Unit) {
	for _, s := range m {
		s.Started(p, u)
	}
}

func (m Multi) Completed(p unit.Phase, u *unit.Unit) {
	for _, s := range m {
		s.Completed(p, u)
	}
}

func (m Multi) Failed(p unit.Phase, u *unit.Unit, msg string) {
	for _, s := range m {
		s.Failed(p, u, msg)
	}
}

func (m Multi) Errored(p unit.Phase, u *unit.Unit, msg string) {
	for _, s := range m {
		s.Errored(p, u, msg)
	}
}

func (m Multi) Skipped(p unit.Phase, u *unit.Unit, msg string) {
	for _, s := range m {
		s.Skipped(p, u, msg)
	}
}

// Flush flushes every member implementing Flushable and returns the first
// error.
func (m Multi) Flush() error {
	var first error
	for _, s := range m {
		if f, ok := s.(Flushable); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Kind names the type of an Event.
type Kind string

const (
	KindStarted   Kind = "started"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindErrored   Kind = "errored"
	KindSkipped   Kind = "skipped"
)

// Event is one recorded notification.
type Event struct {
	Kind    Kind
	Phase   unit.Phase
	Unit    string
	Message string
}

// Recorder keeps every event in arrival order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(k Kind, p unit.Phase, u *unit.Unit, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: k, Phase: p, Unit: u.Path(), Message: msg})
}

func (r *Recorder) Started(p unit.Phase, u *unit.Unit)   { r.add(KindStarted, p, u, "") }
func (r *Recorder) Completed(p unit.Phase, u *unit.Unit) { r.add(KindCompleted, p, u, "") }
func (r *Recorder) Failed(p unit.Phase, u *unit.Unit, msg string) {
	r.add(KindFailed, p, u, msg)
}
func (r *Recorder) Errored(p unit.Phase, u *unit.Unit, msg string) {
	r.add(KindErrored, p, u, msg)
}
func (r *Recorder) Skipped(p unit.Phase, u *unit.Unit, msg string) {
	r.add(KindSkipped, p, u, msg)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events matching kind and, when unitPath is
// not empty, that unit.
func (r *Recorder) Filter(kind Kind, unitPath string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind && (unitPath == "" || e.Unit == unitPath) {
			out = append(out, e)
		}
	}
	return out
}
