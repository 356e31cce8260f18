package scan

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jlgore/tagsweep/internal/query"
	"github.com/jlgore/tagsweep/pkg/models"
)

// Reporter receives scan progress. Calls may come from several goroutines
// when regions are scanned concurrently.
type Reporter interface {
	RegionStarted(region string)
	RegionFinished(result RegionResult)
	ScanFinished(summary *Summary)
}

// NopReporter discards every event
type NopReporter struct{}

func (NopReporter) RegionStarted(string)        {}
func (NopReporter) RegionFinished(RegionResult) {}
func (NopReporter) ScanFinished(*Summary)       {}

// ConsoleReporter prints operator progress lines
type ConsoleReporter struct {
	mu    sync.Mutex
	out   io.Writer
	title cases.Caser
}

// NewConsoleReporter writes progress to out
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{
		out:   out,
		title: cases.Title(language.English),
	}
}

func (c *ConsoleReporter) RegionStarted(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "🔍 Scanning region: %s\n", region)
}

func (c *ConsoleReporter) RegionFinished(r RegionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.State {
	case models.RegionCompleted:
		fmt.Fprintf(c.out, "✅ Found %d untagged resources in %s\n", r.Count, r.Region)
	case models.RegionSkipped:
		if r.Err != nil && errors.Is(r.Err, query.ErrRegionSkipped) {
			fmt.Fprintf(c.out, "⚠️  Access denied in %s (skipping)\n", r.Region)
		} else {
			fmt.Fprintf(c.out, "⏭️  Skipped %s: %v\n", r.Region, r.Err)
		}
	default:
		fmt.Fprintf(c.out, "❌ Error in %s: %v\n", r.Region, r.Err)
		var regionErr *query.RegionError
		if errors.As(r.Err, &regionErr) && regionErr.Throttled() {
			fmt.Fprintf(c.out, "   Requests were throttled, consider lowering pages_per_second or concurrency\n")
		}
	}
}

func (c *ConsoleReporter) ScanFinished(s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n📊 Scan Summary:\n")
	if s.ScanID != "" {
		fmt.Fprintf(c.out, "   Scan ID: %s\n", s.ScanID)
	}
	fmt.Fprintf(c.out, "   Regions: %d", len(s.Regions))
	for _, state := range []models.RegionState{models.RegionCompleted, models.RegionSkipped, models.RegionFailed} {
		if n := s.CountState(state); n > 0 {
			fmt.Fprintf(c.out, " | %s: %d", c.title.String(string(state)), n)
		}
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "   Batches written: %d (%d records)\n", s.Buffer.Flushes, s.Buffer.Written)
	if s.Buffer.Unprocessed > 0 {
		fmt.Fprintf(c.out, "   Unprocessed: %d\n", s.Buffer.Unprocessed)
	}
	if s.Buffer.DeadLettered > 0 {
		fmt.Fprintf(c.out, "   Dead-lettered: %d\n", s.Buffer.DeadLettered)
	}
	if s.Buffer.Dropped > 0 {
		fmt.Fprintf(c.out, "   ⚠️  Dropped: %d\n", s.Buffer.Dropped)
	}
	fmt.Fprintf(c.out, "   Duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(c.out, "\nScan complete. Total untagged resources: %d\n", s.Total)
}
