package sched

import "time"

// Gate enforces the global wall-clock deadline. It is consulted only at
// suspension points (cohort entry and batch dispatch), never mid-batch, so
// in-flight transfers always run to completion.
type Gate struct {
	deadline time.Time
	now      func() time.Time
}

// NewGate creates a gate. A zero deadline disables the time limit.
func NewGate(deadline time.Time) *Gate {
	return &Gate{deadline: deadline, now: time.Now}
}

// Expired reports whether the deadline has passed.
func (g *Gate) Expired() bool {
	if g.deadline.IsZero() {
		return false
	}
	return !g.now().Before(g.deadline)
}

// Open is the dispatch predicate handed to the worker pool.
func (g *Gate) Open() bool {
	return !g.Expired()
}
