package band

import (
	"fmt"
	"sort"
)

// MiB is the unit the size heuristic is expressed in.
const MiB int64 = 1 << 20

// Unbounded marks a band with no upper size limit.
const Unbounded int64 = -1

// sizePerThread is how many bytes one transfer thread is expected to move
// efficiently. A band for n threads covers sizes up to n*32MiB.
const sizePerThread = 32 * MiB

// WorkItem is one object to replicate, identified by path, with a known size.
type WorkItem struct {
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// Band maps a size range to transfer settings. MinBytes is inclusive,
// MaxBytes exclusive; MaxBytes == Unbounded means no upper limit.
type Band struct {
	MinBytes       int64
	MaxBytes       int64
	Threads        int
	MaxConcurrency int
	MaxBatchSize   int
}

// Contains reports whether size falls inside the band.
func (b Band) Contains(size int64) bool {
	if size < b.MinBytes {
		return false
	}
	if b.MaxBytes == Unbounded {
		return true
	}
	return size < b.MaxBytes
}

// Label returns a short human-readable name for log and progress output.
func (b Band) Label() string {
	switch {
	case b.MinBytes == 0 && b.MaxBytes == 1:
		return "empty"
	case b.MaxBytes == Unbounded:
		return fmt.Sprintf(">=%dMiB", b.MinBytes/MiB)
	case b.MinBytes <= 1:
		return fmt.Sprintf("<%dMiB", b.MaxBytes/MiB)
	default:
		return fmt.Sprintf("%d-%dMiB", b.MinBytes/MiB, b.MaxBytes/MiB)
	}
}

// DefaultCatalog derives the band catalog from the thread-count heuristic.
// Bands are ordered smallest size first, which is also highest concurrency
// first; the zero-size band comes last so that empty objects never occupy
// the high-concurrency slots meant for real data.
func DefaultCatalog(maxThreads int) []Band {
	if maxThreads < 1 {
		maxThreads = 1
	}

	catalog := make([]Band, 0, maxThreads+1)
	for t := 1; t <= maxThreads; t++ {
		b := Band{
			MinBytes:       int64(t-1) * sizePerThread,
			MaxBytes:       int64(t) * sizePerThread,
			Threads:        t,
			MaxConcurrency: maxInt(1, 2*maxThreads/t),
			MaxBatchSize:   maxInt(1, 64/t),
		}
		if t == 1 {
			b.MinBytes = 1 // size zero belongs to the dedicated empty band
		}
		if t == maxThreads {
			b.MaxBytes = Unbounded
		}
		catalog = append(catalog, b)
	}

	catalog = append(catalog, Band{
		MinBytes:       0,
		MaxBytes:       1,
		Threads:        1,
		MaxConcurrency: 2 * maxThreads,
		MaxBatchSize:   64,
	})

	return catalog
}

// Partition returns, in their original order, the items whose size falls
// inside b. It is a pure filter: the input slice is never modified.
func Partition(items []WorkItem, b Band) []WorkItem {
	var out []WorkItem
	for _, it := range items {
		if b.Contains(it.Size) {
			out = append(out, it)
		}
	}
	return out
}

// Validate checks that the catalog's bands are disjoint, contiguous, and
// cover [0, inf). The scheduler relies on every item landing in exactly
// one band.
func Validate(catalog []Band) error {
	if len(catalog) == 0 {
		return fmt.Errorf("band catalog is empty")
	}

	sorted := make([]Band, len(catalog))
	copy(sorted, catalog)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinBytes < sorted[j].MinBytes })

	if sorted[0].MinBytes != 0 {
		return fmt.Errorf("catalog does not cover size 0 (first band starts at %d)", sorted[0].MinBytes)
	}

	for i, b := range sorted {
		if b.MaxBytes != Unbounded && b.MaxBytes < b.MinBytes {
			return fmt.Errorf("band %s: max %d below min %d", b.Label(), b.MaxBytes, b.MinBytes)
		}
		if b.Threads < 1 || b.MaxConcurrency < 1 || b.MaxBatchSize < 1 {
			return fmt.Errorf("band %s: threads, concurrency, and batch size must be positive", b.Label())
		}
		if i == len(sorted)-1 {
			if b.MaxBytes != Unbounded {
				return fmt.Errorf("last band %s is bounded at %d; catalog must cover all sizes", b.Label(), b.MaxBytes)
			}
			continue
		}
		if b.MaxBytes == Unbounded {
			return fmt.Errorf("band %s is unbounded but not the largest band", b.Label())
		}
		if next := sorted[i+1]; next.MinBytes != b.MaxBytes {
			if next.MinBytes < b.MaxBytes {
				return fmt.Errorf("bands %s and %s overlap", b.Label(), next.Label())
			}
			return fmt.Errorf("gap between bands %s and %s", b.Label(), next.Label())
		}
	}

	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
