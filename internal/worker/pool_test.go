package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"replbatch/internal/band"

	"go.uber.org/zap"
)

func makeItems(n int) []band.WorkItem {
	items := make([]band.WorkItem, n)
	for i := range items {
		items[i] = band.WorkItem{Size: int64(i + 1), Path: fmt.Sprintf("/data/f%02d", i)}
	}
	return items
}

func drain(t *testing.T, exec *Execution) []Result {
	t.Helper()
	var results []Result
	for res := range exec.Results() {
		results = append(results, res)
	}
	return results
}

func TestExecuteProcessesEveryItem(t *testing.T) {
	pool := NewPool(zap.NewNop())
	items := makeItems(10)

	exec := pool.Execute(context.Background(), items, Options{MaxConcurrency: 3, MaxBatchSize: 4},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			return 0, "", nil
		})

	seen := make(map[string]int)
	for _, res := range drain(t, exec) {
		if res.Failed() {
			t.Errorf("unexpected failure: %v", res.Err)
		}
		for _, it := range res.Items {
			seen[it.Path]++
		}
	}

	if len(seen) != len(items) {
		t.Fatalf("processed %d distinct items, want %d", len(seen), len(items))
	}
	for path, n := range seen {
		if n != 1 {
			t.Errorf("item %s processed %d times", path, n)
		}
	}
	if exec.Halted() || exec.Expired() {
		t.Errorf("clean run reported halted=%v expired=%v", exec.Halted(), exec.Expired())
	}
}

func TestExecuteBatchSizes(t *testing.T) {
	pool := NewPool(zap.NewNop())

	var mu sync.Mutex
	var sizes []int
	exec := pool.Execute(context.Background(), makeItems(10), Options{MaxConcurrency: 1, MaxBatchSize: 3},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			mu.Lock()
			sizes = append(sizes, len(batch))
			mu.Unlock()
			return 0, "", nil
		})
	drain(t, exec)

	want := []int{3, 3, 3, 1}
	if len(sizes) != len(want) {
		t.Fatalf("got %d batches %v, want %v", len(sizes), sizes, want)
	}
	for i, n := range want {
		if sizes[i] != n {
			t.Errorf("batch %d has %d items, want %d", i, sizes[i], n)
		}
	}
}

func TestExecuteConcurrencyBound(t *testing.T) {
	pool := NewPool(zap.NewNop())

	var inflight, peak atomic.Int32
	exec := pool.Execute(context.Background(), makeItems(20), Options{MaxConcurrency: 4, MaxBatchSize: 1},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			cur := inflight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inflight.Add(-1)
			return 0, "", nil
		})
	results := drain(t, exec)

	if len(results) != 20 {
		t.Fatalf("got %d results, want 20", len(results))
	}
	if peak.Load() > 4 {
		t.Errorf("peak concurrency %d exceeds bound 4", peak.Load())
	}
}

func TestExecuteResultsInCompletionOrder(t *testing.T) {
	pool := NewPool(zap.NewNop())
	items := []band.WorkItem{{Size: 1, Path: "/slow"}, {Size: 2, Path: "/fast"}}
	release := make(chan struct{})

	exec := pool.Execute(context.Background(), items, Options{MaxConcurrency: 2, MaxBatchSize: 1},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			if batch[0].Path == "/slow" {
				<-release
			}
			return 0, "", nil
		})

	first := <-exec.Results()
	if first.Items[0].Path != "/fast" {
		t.Errorf("first result is %s, want /fast", first.Items[0].Path)
	}
	close(release)
	second := <-exec.Results()
	if second.Items[0].Path != "/slow" {
		t.Errorf("second result is %s, want /slow", second.Items[0].Path)
	}
	if _, ok := <-exec.Results(); ok {
		t.Error("expected results channel to be closed")
	}
}

func TestExecuteHaltsAfterRepeatedFailures(t *testing.T) {
	pool := NewPool(zap.NewNop())

	var calls atomic.Int32
	exec := pool.Execute(context.Background(), makeItems(10), Options{MaxConcurrency: 1, MaxBatchSize: 1},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			calls.Add(1)
			return 0, "", errors.New("destination unreachable")
		})
	results := drain(t, exec)

	if got := calls.Load(); got != haltAfterFailures {
		t.Errorf("op invoked %d times, want %d", got, haltAfterFailures)
	}
	if len(results) != haltAfterFailures {
		t.Errorf("got %d results, want %d", len(results), haltAfterFailures)
	}
	if !exec.Halted() {
		t.Error("expected execution to report halted")
	}
	if exec.Expired() {
		t.Error("halt must not be reported as expiry")
	}
}

func TestExecuteNonZeroStatusCountsAsFailure(t *testing.T) {
	pool := NewPool(zap.NewNop())

	exec := pool.Execute(context.Background(), makeItems(3), Options{MaxConcurrency: 1, MaxBatchSize: 1},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			return 4, "repl: broken pipe", nil
		})
	results := drain(t, exec)

	if len(results) != haltAfterFailures {
		t.Fatalf("got %d results, want %d", len(results), haltAfterFailures)
	}
	for _, res := range results {
		if !res.Failed() {
			t.Errorf("result with status %d not marked failed", res.Status)
		}
		if res.Stderr != "repl: broken pipe" {
			t.Errorf("stderr %q not preserved", res.Stderr)
		}
	}
	if !exec.Halted() {
		t.Error("expected execution to report halted")
	}
}

func TestExecuteClosedGateStopsDispatch(t *testing.T) {
	pool := NewPool(zap.NewNop())

	var calls atomic.Int32
	exec := pool.Execute(context.Background(), makeItems(5),
		Options{MaxConcurrency: 2, MaxBatchSize: 1, Gate: func() bool { return false }},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			calls.Add(1)
			return 0, "", nil
		})
	results := drain(t, exec)

	if calls.Load() != 0 {
		t.Errorf("op invoked %d times with a closed gate, want 0", calls.Load())
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if !exec.Expired() {
		t.Error("expected execution to report expiry")
	}
	if exec.Halted() {
		t.Error("expiry must not be reported as halt")
	}
}

func TestExecuteGateClosesMidway(t *testing.T) {
	pool := NewPool(zap.NewNop())

	checks := 0
	gate := func() bool {
		checks++
		return checks <= 2
	}

	var calls atomic.Int32
	exec := pool.Execute(context.Background(), makeItems(5),
		Options{MaxConcurrency: 1, MaxBatchSize: 1, Gate: gate},
		func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
			calls.Add(1)
			return 0, "", nil
		})
	results := drain(t, exec)

	if calls.Load() != 2 {
		t.Errorf("op invoked %d times, want 2", calls.Load())
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2: in-flight batches must finish", len(results))
	}
	if !exec.Expired() {
		t.Error("expected execution to report expiry")
	}
}

func TestMakeBatches(t *testing.T) {
	tests := []struct {
		items int
		size  int
		want  []int
	}{
		{0, 3, nil},
		{1, 3, []int{1}},
		{3, 3, []int{3}},
		{7, 3, []int{3, 3, 1}},
		{4, 1, []int{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		batches := makeBatches(makeItems(tt.items), tt.size)
		if len(batches) != len(tt.want) {
			t.Errorf("makeBatches(%d, %d): got %d batches, want %d", tt.items, tt.size, len(batches), len(tt.want))
			continue
		}
		for i, n := range tt.want {
			if len(batches[i]) != n {
				t.Errorf("makeBatches(%d, %d): batch %d has %d items, want %d", tt.items, tt.size, i, len(batches[i]), n)
			}
		}
	}
}
