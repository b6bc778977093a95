package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/dhcgn/eml-extract/config"
	"github.com/dhcgn/eml-extract/filter"
	"github.com/dhcgn/eml-extract/mbox"
	"github.com/dhcgn/eml-extract/message"
	"github.com/dhcgn/eml-extract/model"
	"github.com/dhcgn/eml-extract/state"
	"github.com/dhcgn/eml-extract/stats"
)

const (
	defaultExtension = ".eml"
	mboxExtension    = ".mbox"

	statsBuffer = 256
)

type Option func(*Runner)

// WithFS replaces the OS filesystem.
func WithFS(fs afero.Fs) Option {
	return func(r *Runner) { r.fs = fs }
}

// WithParser replaces the enmime parser.
func WithParser(p message.Parser) Option {
	return func(r *Runner) { r.parser = p }
}

// WithTokenFunc replaces the UUID source used for folder and placeholder names.
func WithTokenFunc(fn func() string) Option {
	return func(r *Runner) { r.newToken = fn }
}

type subscriber struct {
	name   string
	events chan stats.Event
}

// Runner extracts every message file below cfg.Source into cfg.Dest. A
// Runner performs a single run.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	fs       afero.Fs
	parser   message.Parser
	filter   *filter.Filter
	tracker  state.Tracker
	newToken func() string

	observers   []func(model.Progress)
	subscribers []subscriber
	statsWG     sync.WaitGroup

	processed int
	total     int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	filterOpts := filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	}
	f, err := filter.New(filterOpts)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if filterOpts.Active() {
		logger.Info("message filter enabled",
			"includeHeader", len(cfg.IncludeHeader),
			"includeBody", len(cfg.IncludeBody),
			"excludeHeader", len(cfg.ExcludeHeader),
			"excludeBody", len(cfg.ExcludeBody))
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		fs:       afero.NewOsFs(),
		parser:   message.EnmimeParser{},
		filter:   f,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg.SkipProcessed {
		tracker, err := state.NewFileTracker(r.fs, cfg.StateDir, !cfg.DryRun)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("state tracker: %w", err)
		}
		r.tracker = tracker
	}

	return r, nil
}

// Subscribe registers a progress observer. Observers are called in the run
// goroutine, in subscription order.
func (r *Runner) Subscribe(fn func(model.Progress)) {
	r.observers = append(r.observers, fn)
}

// SubscribeStats starts fn in its own goroutine with a dedicated event
// channel. The channel is closed when the run finishes.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	events := make(chan stats.Event, statsBuffer)
	r.subscribers = append(r.subscribers, subscriber{name: name, events: events})

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("stats subscriber failed", "name", name, "err", err)
		}
		// Keep draining so a finished subscriber never blocks the run.
		for range events {
		}
	}()
}

// EmitEvent hands evt to every stats subscriber.
func (r *Runner) EmitEvent(evt stats.Event) {
	if r.closed.Load() {
		return
	}
	for _, sub := range r.subscribers {
		select {
		case <-r.ctx.Done():
			return
		case sub.events <- evt:
		}
	}
}

// Filter exposes the message filter, mainly for its hit counters.
func (r *Runner) Filter() *filter.Filter {
	return r.filter
}

// Start runs the extraction. It only returns an error when ctx is cancelled;
// failures of individual files are logged and reported as events.
func (r *Runner) Start(ctx context.Context) error {
	since := time.Now()
	defer func() {
		if err := r.Close(); err != nil {
			r.logger.Warn("closing runner", "err", err)
		}
		r.logger.Info("pipeline completed", "processed", r.processed, "total", r.total, "duration", time.Since(since))
	}()

	source, dest := strings.TrimSpace(r.cfg.Source), strings.TrimSpace(r.cfg.Dest)
	if source == "" || dest == "" {
		r.logger.Warn("source or destination not set", "source", source, "dest", dest)
		return nil
	}

	info, err := r.fs.Stat(source)
	if err != nil || !info.IsDir() {
		r.logger.Debug("source directory not found", "path", source)
		return nil
	}

	files := Discover(r.fs, source, r.extensions(), r.logger)
	r.total = len(files)
	r.logger.Debug("discovered message files", "path", source, "count", r.total)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("extraction cancelled", "processed", r.processed, "total", r.total)
			return err
		}

		err := r.processFile(path)
		r.processed++
		r.notify(model.Progress{
			Processed: r.processed,
			Total:     r.total,
			Percent:   r.processed * 100 / r.total,
			Path:      path,
			Err:       err,
		})
	}

	return nil
}

// Close ends the stats streams, waits for their consumers and releases the
// state tracker. Start calls it before returning.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		for _, sub := range r.subscribers {
			close(sub.events)
		}
		r.statsWG.Wait()
		r.cancel()

		if closer, ok := r.tracker.(io.Closer); ok {
			r.closeErr = closer.Close()
		}
	})
	return r.closeErr
}

func (r *Runner) notify(p model.Progress) {
	for _, fn := range r.observers {
		fn(p)
	}
}

func (r *Runner) extensions() []string {
	exts := config.NormalizeExtensions(r.cfg.Extensions)
	if len(exts) == 0 {
		exts = []string{defaultExtension}
	}
	if r.cfg.IncludeMbox {
		exts = append(exts, mboxExtension)
	}
	return exts
}

func (r *Runner) isMbox(path string) bool {
	return r.cfg.IncludeMbox && strings.EqualFold(filepath.Ext(path), mboxExtension)
}

func (r *Runner) processFile(path string) error {
	if r.isMbox(path) {
		return r.processMbox(path)
	}

	raw, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return r.reportFailure(path, fmt.Errorf("read: %w", err))
	}
	return r.processMessage(path, raw)
}

func (r *Runner) processMbox(path string) error {
	file, err := r.fs.Open(path)
	if err != nil {
		return r.reportFailure(path, fmt.Errorf("open mbox: %w", err))
	}
	defer file.Close()

	var firstErr error
	err = mbox.Each(file, func(idx int, raw []byte) error {
		if err := r.processMessage(fmt.Sprintf("%s#%d", path, idx), raw); err != nil && firstErr == nil {
			firstErr = err
		}
		return nil
	})
	if err != nil {
		return r.reportFailure(path, fmt.Errorf("read mbox: %w", err))
	}
	return firstErr
}

func (r *Runner) processMessage(origin string, raw []byte) error {
	r.EmitEvent(stats.Event{Stage: stats.StageDiscover, Type: stats.EventTypeScanned, Path: origin})

	if !r.filter.AllowsRaw(raw) {
		r.logger.Debug("message filtered", "path", origin)
		r.EmitEvent(stats.Event{Stage: stats.StageDiscover, Type: stats.EventTypeFiltered, Path: origin})
		return nil
	}

	hash := message.Hash(raw)
	if r.tracker != nil && r.tracker.AlreadyProcessed(hash) {
		r.logger.Debug("message already extracted", "path", origin)
		r.EmitEvent(stats.Event{Stage: stats.StageDiscover, Type: stats.EventTypeDuplicate, Path: origin})
		return nil
	}

	msg, err := r.parser.Parse(raw)
	if err != nil {
		return r.reportFailure(origin, fmt.Errorf("parse: %w", err))
	}
	msg.Origin = origin
	if msg.Hash == "" {
		msg.Hash = hash
	}

	folder, err := r.extract(msg)
	if err != nil {
		return r.reportFailure(origin, err)
	}

	if r.tracker != nil {
		if err := r.tracker.MarkProcessed(hash, folder); err != nil {
			r.logger.Warn("failed to record extracted message", "path", origin, "err", err)
		}
	}

	r.logger.Debug("message extracted", "path", origin, "folder", folder)
	r.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeExtracted, Path: origin, Detail: folder})
	return nil
}

func (r *Runner) reportFailure(path string, err error) error {
	r.logger.Error("message extraction failed", "path", path, "err", err)
	r.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeError, Path: path, Err: err})
	return err
}
