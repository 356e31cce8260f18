package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlgore/tagsweep/internal/buffer"
	"github.com/jlgore/tagsweep/internal/inventory"
	"github.com/jlgore/tagsweep/internal/query"
	"github.com/jlgore/tagsweep/internal/store"
	"github.com/jlgore/tagsweep/pkg/models"
)

// fakeSource serves fixed descriptors per region, then the region's error if any
type fakeSource struct {
	mu      sync.Mutex
	results map[string][]models.Descriptor
	errs    map[string]error
	calls   []string
}

func (f *fakeSource) Search(ctx context.Context, tagKey, region string) iter.Seq2[models.Descriptor, error] {
	f.mu.Lock()
	f.calls = append(f.calls, region)
	f.mu.Unlock()

	return func(yield func(models.Descriptor, error) bool) {
		for _, d := range f.results[region] {
			if !yield(d, nil) {
				return
			}
		}
		if err := f.errs[region]; err != nil {
			yield(models.Descriptor{}, query.Classify(region, err))
		}
	}
}

type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished []RegionResult
	summary  *Summary
}

func (r *recordingReporter) RegionStarted(region string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, region)
}

func (r *recordingReporter) RegionFinished(result RegionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

func (r *recordingReporter) ScanFinished(s *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = s
}

func descriptors(region string, n int) []models.Descriptor {
	out := make([]models.Descriptor, n)
	for i := range out {
		out[i] = models.Descriptor{
			ARN:       fmt.Sprintf("arn:aws:ec2:%s:123:instance/i-%03d", region, i),
			AccountID: "123",
			Region:    region,
			Service:   "ec2",
		}
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestOrchestrator(src query.Source, mem *store.MemoryStore, opts ...Option) *Orchestrator {
	builder := inventory.NewBuilder(24*time.Hour, inventory.WithClock(fixedClock(time.Unix(1700000000, 0))))
	return New(src, builder, func() *buffer.Buffer { return buffer.New(mem) }, opts...)
}

func TestRunGlobalScenario(t *testing.T) {
	src := &fakeSource{results: map[string][]models.Descriptor{
		models.GlobalRegion: {{ARN: "arn:aws:iam::123:role/X", Service: "iam"}},
	}}
	mem := store.NewMemoryStore()

	summary := newTestOrchestrator(src, mem).Run(context.Background(), "Foobar", []string{"Global", "us-east-1"})

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, "Foobar", summary.Tag)

	rec, ok := mem.Get("arn:aws:iam::123:role/X")
	require.True(t, ok)
	assert.Equal(t, "iam", rec.Service)
	assert.Equal(t, rec.LastSeen+86400, rec.ExpireAt)
	assert.Len(t, mem.Records(), 1)
}

func TestRunRegionIsolation(t *testing.T) {
	src := &fakeSource{
		results: map[string][]models.Descriptor{
			"r1": descriptors("r1", 2),
			"r2": descriptors("r2", 4),
			"r3": descriptors("r3", 3),
		},
		errs: map[string]error{"r2": errors.New("connection reset")},
	}
	mem := store.NewMemoryStore()
	rep := &recordingReporter{}

	summary := newTestOrchestrator(src, mem, WithReporter(rep)).Run(context.Background(), "Foobar", []string{"r1", "r2", "r3"})

	assert.Equal(t, 5, summary.Total)
	require.Len(t, summary.Regions, 3)
	assert.Equal(t, models.RegionCompleted, summary.Regions[0].State)
	assert.Equal(t, models.RegionFailed, summary.Regions[1].State)
	assert.ErrorIs(t, summary.Regions[1].Err, query.ErrQueryFailed)
	assert.Equal(t, models.RegionCompleted, summary.Regions[2].State)

	assert.Equal(t, []string{"r1", "r2", "r3"}, rep.started)
	require.Len(t, rep.finished, 3)
	for i, region := range []string{"r1", "r2", "r3"} {
		assert.Equal(t, region, rep.finished[i].Region)
		assert.True(t, rep.finished[i].State.Terminal())
	}
	assert.Same(t, summary, rep.summary)
}

func TestRunAccessDeniedSkipsRegion(t *testing.T) {
	src := &fakeSource{
		results: map[string][]models.Descriptor{"us-east-1": descriptors("us-east-1", 1)},
		errs:    map[string]error{"eu-west-1": &smithy.GenericAPIError{Code: "AccessDeniedException"}},
	}
	mem := store.NewMemoryStore()

	summary := newTestOrchestrator(src, mem).Run(context.Background(), "Foobar", []string{"eu-west-1", "us-east-1"})

	assert.Equal(t, models.RegionSkipped, summary.Regions[0].State)
	assert.ErrorIs(t, summary.Regions[0].Err, query.ErrRegionSkipped)
	assert.Equal(t, 1, summary.CountState(models.RegionSkipped))
	assert.Equal(t, 1, summary.Total)
}

func TestRunAllRegionsFailStillCompletes(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		"a": errors.New("boom"),
		"b": errors.New("boom"),
	}}
	mem := store.NewMemoryStore()

	summary := newTestOrchestrator(src, mem).Run(context.Background(), "Foobar", []string{"a", "b"})

	require.NotNil(t, summary)
	assert.Zero(t, summary.Total)
	assert.Equal(t, 2, summary.CountState(models.RegionFailed))
	assert.Empty(t, mem.Batches())
}

func TestRunFlushesThirtyAsTwoBatches(t *testing.T) {
	src := &fakeSource{results: map[string][]models.Descriptor{
		"us-east-1": descriptors("us-east-1", 30),
	}}
	mem := store.NewMemoryStore()

	summary := newTestOrchestrator(src, mem).Run(context.Background(), "Foobar", []string{"us-east-1"})

	batches := mem.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 25)
	assert.Len(t, batches[1], 5)
	assert.Equal(t, 30, summary.Total)
	assert.Equal(t, buffer.Stats{Flushes: 2, Submitted: 30, Written: 30}, summary.Buffer)
}

func TestRunSharesBufferAcrossRegions(t *testing.T) {
	src := &fakeSource{results: map[string][]models.Descriptor{
		"a": descriptors("a", 10),
		"b": descriptors("b", 10),
	}}
	mem := store.NewMemoryStore()

	newTestOrchestrator(src, mem).Run(context.Background(), "Foobar", []string{"a", "b"})

	// sequential runs force-flush once at the end
	require.Len(t, mem.Batches(), 1)
	assert.Len(t, mem.Batches()[0], 20)
}

func TestRunUpsertIsIdempotent(t *testing.T) {
	src := &fakeSource{results: map[string][]models.Descriptor{
		"us-east-1": descriptors("us-east-1", 1),
	}}
	mem := store.NewMemoryStore()
	bufs := func() *buffer.Buffer { return buffer.New(mem) }

	first := New(src, inventory.NewBuilder(time.Hour, inventory.WithClock(fixedClock(time.Unix(1000, 0)))), bufs)
	second := New(src, inventory.NewBuilder(time.Hour, inventory.WithClock(fixedClock(time.Unix(5000, 0)))), bufs)

	first.Run(context.Background(), "Foobar", []string{"us-east-1"})
	second.Run(context.Background(), "Foobar", []string{"us-east-1"})

	records := mem.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(5000), records[0].LastSeen)
	assert.Equal(t, int64(8600), records[0].ExpireAt)
}

func TestRunPartialWriteStillCountsDiscovery(t *testing.T) {
	src := &fakeSource{results: map[string][]models.Descriptor{
		"us-east-1": descriptors("us-east-1", 25),
	}}
	mem := store.NewMemoryStore()
	mem.Reject = func(rec models.InventoryRecord) bool { return rec.ARN == descriptors("us-east-1", 1)[0].ARN }

	summary := newTestOrchestrator(src, mem).Run(context.Background(), "Foobar", []string{"us-east-1"})

	assert.Equal(t, 25, summary.Total)
	assert.Equal(t, 1, summary.Buffer.Unprocessed)
	assert.Equal(t, 1, summary.Buffer.Dropped)
	assert.Len(t, mem.Records(), 24)
}

func TestRunConcurrent(t *testing.T) {
	regions := []string{"a", "b", "c", "d"}
	src := &fakeSource{
		results: map[string][]models.Descriptor{},
		errs:    map[string]error{"c": errors.New("boom")},
	}
	for i, r := range regions {
		src.results[r] = descriptors(r, 10*(i+1))
	}

	mem := store.NewMemoryStore()
	var created int
	var mu sync.Mutex
	builder := inventory.NewBuilder(time.Hour)
	o := New(src, builder, func() *buffer.Buffer {
		mu.Lock()
		created++
		mu.Unlock()
		return buffer.New(mem)
	}, WithConcurrency(2))

	summary := o.Run(context.Background(), "Foobar", regions)

	require.Len(t, summary.Regions, 4)
	for i, r := range regions {
		assert.Equal(t, r, summary.Regions[i].Region, "results keep input order")
	}
	assert.Equal(t, models.RegionFailed, summary.Regions[2].State)
	assert.Equal(t, 10+20+40, summary.Total)
	assert.Equal(t, 4, created, "one buffer per region")
	assert.Equal(t, 100, summary.Buffer.Submitted, "failed regions still persist what they found")
	assert.Len(t, mem.Records(), 100)
}

func TestRunCanceledContext(t *testing.T) {
	src := &fakeSource{results: map[string][]models.Descriptor{
		"a": descriptors("a", 3),
	}}
	mem := store.NewMemoryStore()
	rep := &recordingReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := newTestOrchestrator(src, mem, WithReporter(rep)).Run(ctx, "Foobar", []string{"a", "b"})

	require.NotNil(t, summary)
	for _, r := range summary.Regions {
		assert.Equal(t, models.RegionSkipped, r.State)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Empty(t, src.calls)
	assert.Empty(t, rep.started)
	assert.Len(t, rep.finished, 2)
}

func TestRunEmptyRegionList(t *testing.T) {
	mem := store.NewMemoryStore()
	summary := newTestOrchestrator(&fakeSource{}, mem).Run(context.Background(), "Foobar", nil)

	assert.Empty(t, summary.Regions)
	assert.Zero(t, summary.Total)
	assert.Empty(t, mem.Batches())
}
