package step

import "sync"

// Listener observes step execution.
type Listener interface {
	StepStarted(s Step)
	StepCompleted(s Step)
	StepErrored(s Step, err error)
}

// Listeners is an append-only registry that is safe for concurrent
// notification from several orchestrators.
type Listeners struct {
	mu   sync.RWMutex
	list []Listener
}

// Add registers listeners. Nil listeners are ignored.
func (l *Listeners) Add(listeners ...Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ls := range listeners {
		if ls != nil {
			l.list = append(l.list, ls)
		}
	}
}

// Len returns the number of registered listeners.
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.list)
}

func (l *Listeners) snapshot() []Listener {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.list[:len(l.list):len(l.list)]
}

func (l *Listeners) started(s Step) {
	for _, ls := range l.snapshot() {
		ls.StepStarted(s)
	}
}

func (l *Listeners) completed(s Step) {
	for _, ls := range l.snapshot() {
		ls.StepCompleted(s)
	}
}

func (l *Listeners) errored(s Step, err error) {
	for _, ls := range l.snapshot() {
		ls.StepErrored(s, err)
	}
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnStarted   func(s Step)
	OnCompleted func(s Step)
	OnErrored   func(s Step, err error)
}

func (f ListenerFuncs) StepStarted(s Step) {
	if f.OnStarted != nil {
		f.OnStarted(s)
	}
}

func (f ListenerFuncs) StepCompleted(s Step) {
	if f.OnCompleted != nil {
		f.OnCompleted(s)
	}
}

func (f ListenerFuncs) StepErrored(s Step, err error) {
	if f.OnErrored != nil {
		f.OnErrored(s, err)
	}
}
