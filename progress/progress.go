package progress

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/eml-extract/model"
	"github.com/dhcgn/eml-extract/stats"
)

const maxTitleLen = 40

// Bar renders extraction progress in the terminal.
type Bar struct {
	pb        *pterm.ProgressbarPrinter
	mu        sync.Mutex
	enabled   bool
	total     int
	processed int
}

// New creates a progress bar that is only active at the info log level.
// The bar itself starts with the first progress event, once the total is known.
func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Update advances the bar for one processed file.
func (b *Bar) Update(p model.Progress) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil && b.processed == 0 {
		pb, err := pterm.DefaultProgressbar.
			WithTotal(p.Total).
			WithTitle("Extracting messages").
			Start()
		if err != nil {
			b.enabled = false
			return
		}
		b.pb = pb
		b.total = p.Total
	}

	b.processed = p.Processed
	if b.pb == nil {
		return
	}
	if p.Path != "" {
		b.pb.UpdateTitle("Extracting: " + shorten(filepath.Base(p.Path)))
	}
	b.pb.Increment()
}

// Stop finalizes the progress bar. It is safe to call more than once.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
	b.pb = nil
	pterm.Success.Println("Extraction complete!")
}

// Processed is the number of files reported so far.
func (b *Bar) Processed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processed
}

// Subscriber prints failures above the bar while the run is going.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if evt.Type == stats.EventTypeError && evt.Err != nil {
				pterm.Error.Printf("%s: %v\n", evt.Path, evt.Err)
			}
		}
	}
}

func shorten(s string) string {
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen-3]) + "..."
}

// ProgressReporter prints a pterm summary once the run finishes.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewProgressReporter subscribes the bar and a summary collector to stream
// when the bar is enabled.
func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

// Summary returns the counters collected so far.
func (pr *ProgressReporter) Summary() stats.Summary {
	return pr.collector.Snapshot()
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	// The summary goes below the finished bar.
	pr.bar.Stop()

	summary := pr.collector.Snapshot()
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", time.Since(pr.started).Round(time.Millisecond))
	pterm.Info.Printf("Messages scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Extracted: %d\n", summary.Extracted)
	pterm.Info.Printf("Attachments saved: %d\n", summary.Attachments)
	pterm.Info.Printf("Inline parts saved: %d\n", summary.Inlines)
	pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	pterm.Info.Printf("Already extracted (skipped): %d\n", summary.Duplicates)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	if pr.logger != nil {
		pr.logger.Debug("progress summary printed", summary.LogAttrs()...)
	}

	return nil
}
