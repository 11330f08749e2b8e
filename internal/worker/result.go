package worker

import (
	"time"

	"replbatch/internal/band"
)

// Result is the outcome of one batch transfer. Both successes and failures
// flow through the same channel so the progress tracker can count every
// item exactly once.
type Result struct {
	Items    []band.WorkItem
	Status   int
	Stderr   string
	Err      error
	Duration time.Duration
}

// Failed reports whether the batch did not complete cleanly.
func (r Result) Failed() bool {
	return r.Err != nil || r.Status != 0
}

// Bytes returns the total size of the batch's items.
func (r Result) Bytes() int64 {
	var n int64
	for _, it := range r.Items {
		n += it.Size
	}
	return n
}
