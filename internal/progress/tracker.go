package progress

import (
	"fmt"
	"io"
)

// RunState holds the process-wide replication counters. Completed is only
// ever incremented by the tracker of the currently active cohort; cohorts
// run sequentially, so no synchronization is needed.
type RunState struct {
	Total     int
	Completed int
}

// Tracker renders per-cohort and overall progress for one cohort's result
// stream. It is a pure observer: callers feed it counts as results arrive
// and it rewrites a single carriage-return-overwritten line.
type Tracker struct {
	out      io.Writer
	label    string
	subTotal int
	subCount int
	run      *RunState
	active   bool
}

// NewTracker creates a tracker for one cohort.
func NewTracker(out io.Writer, label string, subTotal int, run *RunState) *Tracker {
	return &Tracker{out: out, label: label, subTotal: subTotal, run: run}
}

// Start announces the cohort. The line is emitted even for an empty cohort
// so operators can see every band was considered.
func (t *Tracker) Start(totalBytes int64) {
	fmt.Fprintf(t.out, "%s: replicating %d files (%s)\n", t.label, t.subTotal, FormatBytes(totalBytes))
}

// Add records n more processed items (successes and failures both count)
// and rewrites the progress line.
func (t *Tracker) Add(n int) {
	t.subCount += n
	t.run.Completed += n
	fmt.Fprintf(t.out, "\r%s", t.line())
	t.active = true
}

// Finish terminates the progress line with a final, non-overwritten
// summary. timedOut marks a cohort cut short by the deadline.
func (t *Tracker) Finish(timedOut bool) {
	if !t.active && t.subTotal == 0 && !timedOut {
		return
	}
	if timedOut {
		fmt.Fprintf(t.out, "\r%s (out of time)\n", t.line())
		return
	}
	fmt.Fprintf(t.out, "\r%s\n", t.line())
}

// line formats "cohort: <n>/<N>, all: <m>/<M>" with counters zero-padded to
// the width of their totals, so the overwritten line never shrinks.
func (t *Tracker) line() string {
	return fmt.Sprintf("cohort: %0*d/%d, all: %0*d/%d",
		digits(t.subTotal), t.subCount, t.subTotal,
		digits(t.run.Total), t.run.Completed, t.run.Total,
	)
}

func digits(n int) int {
	if n <= 0 {
		return 1
	}
	d := 0
	for n > 0 {
		d++
		n /= 10
	}
	return d
}
