package scanner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/codeguard/internal/aggregator"
	"github.com/dshills/codeguard/internal/finding"
	"github.com/dshills/codeguard/internal/indexer"
	"github.com/dshills/codeguard/internal/ingest"
	"github.com/dshills/codeguard/internal/logging"
	"github.com/dshills/codeguard/internal/metrics"
	"github.com/dshills/codeguard/internal/retriever"
	"github.com/dshills/codeguard/internal/storage"
	"github.com/dshills/codeguard/pkg/types"
)

// Lifecycle defaults
const (
	DefaultWorkers            = 4
	DefaultMaxFailureFraction = 0.5
	DefaultMaxDuration        = time.Hour
)

// Dependencies are the pipeline stages a Controller drives
type Dependencies struct {
	Ingestor  *ingest.Ingestor
	Indexer   *indexer.Indexer
	Index     storage.VectorIndex
	Retriever *retriever.Retriever
	Generator *finding.Generator
	Metrics   *metrics.Metrics // Optional
}

// Options configures scan lifecycle policy. MaxFailureFraction and the
// aggregator thresholds are used as given; start from DefaultOptions.
type Options struct {
	Workers            int
	MaxFailureFraction float64 // Zero fails the scan on any failed unit
	MaxDuration        time.Duration
	Aggregator         aggregator.Config
}

// DefaultOptions returns the default lifecycle policy
func DefaultOptions() Options {
	return Options{
		Workers:            DefaultWorkers,
		MaxFailureFraction: DefaultMaxFailureFraction,
		MaxDuration:        DefaultMaxDuration,
		Aggregator:         aggregator.DefaultConfig(),
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	return o
}

// Controller owns every scan's lifecycle: it allocates scans, runs the
// pipeline and serves status and results to concurrent readers
type Controller struct {
	deps Dependencies
	opts Options

	mu    sync.RWMutex
	scans map[string]*scanRecord

	wg      sync.WaitGroup
	now     func() time.Time
	closers []func() error
	logger  zerolog.Logger
}

// New creates a Controller
func New(deps Dependencies, opts Options) *Controller {
	return &Controller{
		deps:   deps,
		opts:   opts.withDefaults(),
		scans:  make(map[string]*scanRecord),
		now:    time.Now,
		logger: logging.New("scanner"),
	}
}

// Start validates req, allocates a pending scan and runs it in the
// background. The scan outlives ctx; use Cancel to stop it.
func (c *Controller) Start(ctx context.Context, req types.ScanRequest) (types.ScanResponse, error) {
	rec, err := c.start(context.WithoutCancel(ctx), req)
	if err != nil {
		return types.ScanResponse{}, err
	}
	return rec.snapshot().Response(), nil
}

// Run executes a scan synchronously. Cancelling ctx cancels the scan,
// which still ends with a result.
func (c *Controller) Run(ctx context.Context, req types.ScanRequest) (*types.ScanResult, error) {
	rec, err := c.start(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}

	select {
	case <-rec.done:
	case <-ctx.Done():
		rec.cancelled.Store(true)
		rec.cancel()
		<-rec.done
	}
	return rec.snapshot(), nil
}

func (c *Controller) start(base context.Context, req types.ScanRequest) (*scanRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	rec := newRecord(id, req, aggregator.New(id, c.opts.Aggregator), c.now())

	work, cancelWork := context.WithTimeout(base, c.opts.MaxDuration)
	dispatch, cancelDispatch := context.WithCancel(work)
	rec.cancel = cancelDispatch

	c.mu.Lock()
	c.scans[id] = rec
	c.mu.Unlock()

	c.deps.Metrics.ScanStarted()
	c.logger.Info().Str("scan_id", id).Str("target", req.Target()).Msg("scan started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancelWork()
		defer cancelDispatch()
		c.run(dispatch, work, rec)
	}()
	return rec, nil
}

func (c *Controller) get(id string) (*scanRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.scans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrScanNotFound, id)
	}
	return rec, nil
}

// Status returns the counts-only view of a scan
func (c *Controller) Status(id string) (types.ScanResponse, error) {
	rec, err := c.get(id)
	if err != nil {
		return types.ScanResponse{}, err
	}
	return rec.snapshot().Response(), nil
}

// Result returns the full view of a scan, including partial issues while
// it is still running
func (c *Controller) Result(id string) (*types.ScanResult, error) {
	rec, err := c.get(id)
	if err != nil {
		return nil, err
	}
	return rec.snapshot(), nil
}

// Wait blocks until the scan finishes or ctx is done
func (c *Controller) Wait(ctx context.Context, id string) (*types.ScanResult, error) {
	rec, err := c.get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-rec.done:
		return rec.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns every known scan ordered by start time
func (c *Controller) List() []types.ScanResponse {
	c.mu.RLock()
	out := make([]types.ScanResponse, 0, len(c.scans))
	for _, rec := range c.scans {
		out = append(out, rec.snapshot().Response())
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.ScanResponse) int {
		if n := a.StartedAt.Compare(b.StartedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ScanID, b.ScanID)
	})
	return out
}

// Cancel stops dispatch of new work for a running scan. In-flight calls
// drain and the scan ends failed with a cancellation cause.
func (c *Controller) Cancel(id string) error {
	rec, err := c.get(id)
	if err != nil {
		return err
	}
	if rec.finished() || rec.status().Terminal() {
		return fmt.Errorf("%w: %s", types.ErrScanFinished, id)
	}
	rec.cancelled.Store(true)
	rec.cancel()
	c.logger.Info().Str("scan_id", id).Msg("scan cancellation requested")
	return nil
}

// Delete drops a scan and its vector namespace. A running scan is
// cancelled and awaited first.
func (c *Controller) Delete(ctx context.Context, id string) error {
	rec, err := c.get(id)
	if err != nil {
		return err
	}

	if !rec.finished() {
		rec.cancelled.Store(true)
		rec.cancel()
		select {
		case <-rec.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.deps.Index != nil {
		if err := c.deps.Index.DeleteScan(ctx, id); err != nil {
			return fmt.Errorf("delete index namespace: %w", err)
		}
	}

	c.mu.Lock()
	delete(c.scans, id)
	c.mu.Unlock()

	c.logger.Info().Str("scan_id", id).Msg("scan deleted")
	return nil
}

// Shutdown cancels every running scan and waits for them to finish
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.RLock()
	for _, rec := range c.scans {
		if !rec.finished() {
			rec.cancelled.Store(true)
			rec.cancel()
		}
	}
	c.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
