package scanner

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/codeguard/internal/aggregator"
	"github.com/dshills/codeguard/pkg/types"
)

// scanRecord is the state of one scan. Only the scan's run goroutine calls
// update; every other access goes through snapshot.
type scanRecord struct {
	mu     sync.RWMutex
	result types.ScanResult

	request   types.ScanRequest
	agg       *aggregator.Aggregator
	cancel    context.CancelFunc // Stops dispatch
	cancelled atomic.Bool
	done      chan struct{}
}

func newRecord(id string, req types.ScanRequest, agg *aggregator.Aggregator, now time.Time) *scanRecord {
	return &scanRecord{
		result: types.ScanResult{
			ScanID:         id,
			Status:         types.StatusPending,
			RepositoryURL:  req.RepositoryURL,
			RepositoryPath: req.RepositoryPath,
			StartedAt:      now,
			Issues:         []types.Issue{},
		},
		request: req,
		agg:     agg,
		done:    make(chan struct{}),
	}
}

// update applies fn under the write lock
func (r *scanRecord) update(fn func(res *types.ScanResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.result)
}

// transition moves the scan forward. Illegal transitions are ignored and
// reported as false.
func (r *scanRecord) transition(next types.ScanStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.result.Status.CanTransition(next) {
		return false
	}
	r.result.Status = next
	return true
}

// snapshot returns a deep enough copy for callers to read freely
func (r *scanRecord) snapshot() *types.ScanResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := r.result
	res.Issues = slices.Clone(r.result.Issues)
	if res.Issues == nil {
		res.Issues = []types.Issue{}
	}
	res.Warnings = slices.Clone(r.result.Warnings)
	if r.result.CompletedAt != nil {
		t := *r.result.CompletedAt
		res.CompletedAt = &t
	}
	res.Summary = types.Summarize(res.Issues)
	return &res
}

func (r *scanRecord) status() types.ScanStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result.Status
}

func (r *scanRecord) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
