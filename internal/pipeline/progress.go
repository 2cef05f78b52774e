package pipeline

import (
	"sync"
	"time"
)

// Progress tracks the stage a running pipeline is in. It is safe for
// concurrent use and a nil *Progress ignores updates.
type Progress struct {
	mu       sync.RWMutex
	started  time.Time
	finished time.Time
	stage    string
	err      error
}

// NewProgress returns an idle Progress.
func NewProgress() *Progress {
	return &Progress{}
}

// Snapshot is a point-in-time copy of a Progress.
type Snapshot struct {
	Stage     string
	Running   bool
	Done      bool
	Error     string
	StartedAt time.Time
	Elapsed   time.Duration
}

func (p *Progress) start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = time.Now()
	p.finished = time.Time{}
	p.stage = ""
	p.err = nil
}

func (p *Progress) enter(stage string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()
}

func (p *Progress) finish(err error) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = time.Now()
	p.err = err
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Stage:     p.stage,
		StartedAt: p.started,
		Running:   !p.started.IsZero() && p.finished.IsZero(),
		Done:      !p.finished.IsZero(),
	}
	if p.err != nil {
		s.Error = p.err.Error()
	}
	switch {
	case s.Done:
		s.Elapsed = p.finished.Sub(p.started)
	case s.Running:
		s.Elapsed = time.Since(p.started)
	}
	return s
}
