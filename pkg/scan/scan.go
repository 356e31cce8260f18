// Package scan drives a tag-compliance scan across regions.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jlgore/tagsweep/internal/buffer"
	"github.com/jlgore/tagsweep/internal/inventory"
	"github.com/jlgore/tagsweep/internal/query"
	"github.com/jlgore/tagsweep/pkg/models"
)

// BufferFactory creates the buffer a scan writes through. Sequential runs call
// it once; concurrent runs call it once per region.
type BufferFactory func() *buffer.Buffer

// RegionResult is the outcome of scanning one region
type RegionResult struct {
	Region   string
	State    models.RegionState
	Count    int
	Err      error
	Duration time.Duration
}

// Summary aggregates a whole run. Total only counts regions that completed.
type Summary struct {
	ScanID   string
	Tag      string
	Regions  []RegionResult
	Total    int
	Buffer   buffer.Stats
	Duration time.Duration
}

// CountState returns how many regions ended in state
func (s *Summary) CountState(state models.RegionState) int {
	n := 0
	for _, r := range s.Regions {
		if r.State == state {
			n++
		}
	}
	return n
}

// Orchestrator scans regions, builds records and writes them through buffers.
// A failing region never stops the run.
type Orchestrator struct {
	source      query.Source
	builder     *inventory.Builder
	buffers     BufferFactory
	reporter    Reporter
	logger      *slog.Logger
	concurrency int
	scanID      string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithReporter receives progress events
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConcurrency scans up to n regions at once. 1 keeps regions sequential.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = max(n, 1)
	}
}

// WithScanID labels the summary
func WithScanID(id string) Option {
	return func(o *Orchestrator) {
		o.scanID = id
	}
}

// New creates an orchestrator
func New(source query.Source, builder *inventory.Builder, buffers BufferFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:      source,
		builder:     builder,
		buffers:     buffers,
		reporter:    NopReporter{},
		logger:      slog.Default(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run scans every region for resources missing tagKey. It always returns a
// summary; per-region failures are recorded in the results. Regions not yet
// started when ctx is canceled are reported as skipped, and buffered records
// are still flushed.
func (o *Orchestrator) Run(ctx context.Context, tagKey string, regions []string) *Summary {
	start := time.Now()
	summary := &Summary{
		ScanID:  o.scanID,
		Tag:     tagKey,
		Regions: make([]RegionResult, len(regions)),
	}

	if o.concurrency > 1 && len(regions) > 1 {
		summary.Buffer = o.runConcurrent(ctx, tagKey, regions, summary.Regions)
	} else {
		summary.Buffer = o.runSequential(ctx, tagKey, regions, summary.Regions)
	}

	for _, r := range summary.Regions {
		if r.State == models.RegionCompleted {
			summary.Total += r.Count
		}
	}
	summary.Duration = time.Since(start)

	o.reporter.ScanFinished(summary)
	return summary
}

func (o *Orchestrator) runSequential(ctx context.Context, tagKey string, regions []string, results []RegionResult) buffer.Stats {
	buf := o.buffers()
	for i, region := range regions {
		results[i] = o.scanRegion(ctx, buf, tagKey, region)
	}

	buf.ForceFlush(context.WithoutCancel(ctx))
	return buf.Stats()
}

func (o *Orchestrator) runConcurrent(ctx context.Context, tagKey string, regions []string, results []RegionResult) buffer.Stats {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		stats buffer.Stats
	)
	g.SetLimit(o.concurrency)

	for i, region := range regions {
		g.Go(func() error {
			buf := o.buffers()
			results[i] = o.scanRegion(ctx, buf, tagKey, region)
			buf.ForceFlush(context.WithoutCancel(ctx))

			mu.Lock()
			stats.Merge(buf.Stats())
			mu.Unlock()
			return nil
		})
	}

	// workers never return an error; failures live in the results
	_ = g.Wait()
	return stats
}

func (o *Orchestrator) scanRegion(ctx context.Context, buf *buffer.Buffer, tagKey, region string) RegionResult {
	result := RegionResult{Region: region, State: models.RegionPending}

	if err := ctx.Err(); err != nil {
		result.State = models.RegionSkipped
		result.Err = err
		o.reporter.RegionFinished(result)
		return result
	}

	start := time.Now()
	result.State = models.RegionScanning
	o.reporter.RegionStarted(region)

	for d, err := range o.source.Search(ctx, tagKey, region) {
		if err != nil {
			result.Err = err
			result.State = failureState(err)
			o.logger.WarnContext(ctx, "region scan stopped",
				"region", region,
				"state", string(result.State),
				"found", result.Count,
				"error", err,
			)
			break
		}

		rec := o.builder.Build(d)
		o.logger.DebugContext(ctx, "untagged resource",
			"resource_arn", rec.ARN,
			"region", region,
			"service", rec.Service,
		)
		// write failures are reported by the buffer and do not stop discovery
		_ = buf.Add(ctx, rec)
		result.Count++
	}

	if result.State == models.RegionScanning {
		result.State = models.RegionCompleted
	}
	result.Duration = time.Since(start)

	o.reporter.RegionFinished(result)
	return result
}

func failureState(err error) models.RegionState {
	if errors.Is(err, query.ErrRegionSkipped) {
		return models.RegionSkipped
	}
	return models.RegionFailed
}
