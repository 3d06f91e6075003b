package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeguard/internal/indexer"
	"github.com/dshills/codeguard/internal/ingest"
	"github.com/dshills/codeguard/pkg/types"
)

// fileEvent reports the detection outcome of one file to the run goroutine
type fileEvent struct {
	path     string
	findings []types.Finding
	warnings []types.Warning
	units    int
	failed   int
	complete bool // Every chunk-pass unit of the file resolved
}

// run drives one scan to a terminal state. It is the only writer of rec.
func (c *Controller) run(dispatch, work context.Context, rec *scanRecord) {
	scanID := rec.result.ScanID
	logger := c.logger.With().Str("scan_id", scanID).Logger()
	if url := rec.request.RepositoryURL; url != "" {
		logger = logger.With().Str("repository", ingest.RepositoryName(url)).Logger()
	}

	defer close(rec.done)

	src, err := c.deps.Ingestor.Resolve(dispatch, rec.request)
	if err != nil {
		c.deps.Metrics.UnitFailed(types.StageIngest)
		c.finish(rec, logger, c.cause(work, rec, err))
		return
	}
	defer func() {
		if err := src.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove temporary clone")
		}
	}()

	rec.update(func(res *types.ScanResult) {
		res.TotalFiles = len(src.Files)
	})
	rec.transition(types.StatusInProgress)

	indexed, stats, err := c.deps.Indexer.IndexFiles(dispatch, work, scanID, src.Files)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.finish(rec, logger, err)
		return
	}
	var warnings []types.Warning
	for _, f := range indexed {
		warnings = append(warnings, f.Warnings...)
	}
	c.addWarnings(rec, warnings)
	if stats != nil {
		logger.Info().
			Int("files", stats.FilesIndexed).
			Int("chunks", stats.ChunksCreated).
			Int("degraded", stats.ChunksDegraded).
			Dur("duration", stats.Duration).
			Msg("indexing phase finished")
	}
	if dispatch.Err() != nil {
		c.finish(rec, logger, c.cause(work, rec, dispatch.Err()))
		return
	}

	units, failed := c.detect(dispatch, work, rec, indexed)

	if _, err := rec.agg.Issues(); err != nil {
		c.finish(rec, logger, err)
		return
	}
	if dispatch.Err() != nil {
		c.finish(rec, logger, c.cause(work, rec, dispatch.Err()))
		return
	}
	if units > 0 && float64(failed)/float64(units) > c.opts.MaxFailureFraction {
		c.finish(rec, logger, fmt.Errorf("%w: %d of %d analysis units failed", types.ErrFailureThreshold, failed, units))
		return
	}

	snap := rec.snapshot()
	if snap.ScannedFiles != snap.TotalFiles {
		c.finish(rec, logger, fmt.Errorf("scan incomplete: %d of %d files scanned", snap.ScannedFiles, snap.TotalFiles))
		return
	}
	c.finish(rec, logger, nil)
}

// detect runs the detection phase over indexed files and applies every
// file event as it arrives. It returns the total and failed unit counts.
func (c *Controller) detect(dispatch, work context.Context, rec *scanRecord, files []*indexer.IndexedFile) (units, failed int) {
	scanID := rec.result.ScanID
	events := make(chan fileEvent)

	go func() {
		defer close(events)
		g := new(errgroup.Group)
		g.SetLimit(c.opts.Workers)
		for _, f := range files {
			if dispatch.Err() != nil {
				break
			}
			if !f.Done {
				continue
			}
			g.Go(func() error {
				events <- c.detectFile(dispatch, work, scanID, f)
				return nil
			})
		}
		_ = g.Wait()
	}()

	for ev := range events {
		units += ev.units
		failed += ev.failed
		c.apply(rec, ev)
	}
	return units, failed
}

// detectFile analyses every chunk of one file. Dispatch cancellation stops
// before the next chunk; calls already started finish on work.
func (c *Controller) detectFile(dispatch, work context.Context, scanID string, f *indexer.IndexedFile) fileEvent {
	ev := fileEvent{path: f.File.Path, complete: true}

	for i := range f.Chunks {
		if dispatch.Err() != nil {
			ev.complete = false
			return ev
		}
		chunk := f.Chunks[i]

		var related []types.ContextChunk
		if !f.Degraded(chunk.ID) && c.deps.Retriever != nil {
			ctxChunks, err := c.deps.Retriever.Retrieve(work, scanID, chunk, f.Vectors[chunk.ID])
			if err != nil {
				ev.warnings = append(ev.warnings, types.Warning{
					Stage:    types.StageRetrieval,
					FilePath: chunk.FilePath,
					ChunkID:  chunk.ID,
					Message:  err.Error(),
				})
			}
			related = ctxChunks
		}

		for _, out := range c.deps.Generator.Run(work, chunk, related, f.LineCount) {
			ev.units++
			if out.Err != nil {
				ev.failed++
				ev.warnings = append(ev.warnings, types.Warning{
					Stage:    types.StageGeneration,
					FilePath: chunk.FilePath,
					ChunkID:  chunk.ID,
					Pass:     string(out.Pass),
					Message:  out.Err.Error(),
				})
				continue
			}
			ev.findings = append(ev.findings, out.Findings...)
		}
	}
	return ev
}

// apply folds one file event into the record
func (c *Controller) apply(rec *scanRecord, ev fileEvent) {
	rec.agg.Add(ev.findings...)
	issues, err := rec.agg.Issues()

	c.addWarnings(rec, ev.warnings)
	rec.update(func(res *types.ScanResult) {
		if err == nil {
			res.Issues = issues
		}
		if ev.complete {
			res.ScannedFiles++
		}
	})
}

func (c *Controller) addWarnings(rec *scanRecord, warnings []types.Warning) {
	if len(warnings) == 0 {
		return
	}
	for _, w := range warnings {
		c.deps.Metrics.UnitFailed(w.Stage)
	}
	rec.update(func(res *types.ScanResult) {
		res.Warnings = append(res.Warnings, warnings...)
	})
}

// cause maps a context error to the scan's failure cause
func (c *Controller) cause(work context.Context, rec *scanRecord, err error) error {
	switch {
	case rec.cancelled.Load():
		return types.ErrScanCancelled
	case errors.Is(work.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w (%s)", types.ErrScanTimeout, c.opts.MaxDuration)
	default:
		return err
	}
}

// finish moves the scan to its terminal state, keeping partial issues
func (c *Controller) finish(rec *scanRecord, logger zerolog.Logger, cause error) {
	status := types.StatusCompleted
	if cause != nil {
		status = types.StatusFailed
	}

	issues, aggErr := rec.agg.Issues()
	if aggErr != nil && status == types.StatusCompleted {
		status = types.StatusFailed
		cause = aggErr
	}

	now := c.now()
	rec.update(func(res *types.ScanResult) {
		if aggErr == nil {
			res.Issues = issues
		}
		res.Summary = types.Summarize(res.Issues)
		res.CompletedAt = &now
		if cause != nil {
			res.Error = cause.Error()
		}
	})
	rec.transition(status)

	snap := rec.snapshot()
	c.deps.Metrics.ScanFinished(snap.Status, snap.Issues)

	event := logger.Info()
	if cause != nil {
		event = logger.Warn().Err(cause)
	}
	event.
		Str("status", string(snap.Status)).
		Int("files", snap.ScannedFiles).
		Int("issues", len(snap.Issues)).
		Int("warnings", len(snap.Warnings)).
		Dur("duration", now.Sub(snap.StartedAt)).
		Msg("scan finished")
}
