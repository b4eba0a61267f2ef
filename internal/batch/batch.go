// Package batch analyzes several documents against the analysis service
// with bounded concurrency, tracking each file through its upload states.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/service"
)

// State is where an item is in the pipeline.
type State int

const (
	StatePending State = iota
	StateUploading
	StateAnalyzing
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUploading:
		return "uploading"
	case StateAnalyzing:
		return "analyzing"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s == StateSuccess || s == StateError
}

// Item is one file in a batch.
type Item struct {
	Path     string
	Name     string
	Size     int64
	State    State
	Progress int // percent, for display
	Err      error
	Analysis *model.Analysis
}

// Analyzed pairs a successful analysis with the file it came from.
type Analyzed struct {
	Analysis *model.Analysis
	Path     string
}

// Result is the outcome of a batch run.
type Result struct {
	// Items in enqueue order, duplicates excluded.
	Items []Item
	// Skipped holds paths dropped because an earlier file had the same name.
	Skipped []string
	// Analyzed holds the successful items sorted by file size ascending.
	Analyzed []Analyzed
}

// Failed returns the items that ended in error.
func (r *Result) Failed() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.State == StateError {
			out = append(out, it)
		}
	}
	return out
}

// Analyzer is the part of the service client a batch needs.
type Analyzer interface {
	Analyze(ctx context.Context, filename string, r io.Reader) (*model.Analysis, error)
}

// Runner runs batches.
type Runner struct {
	analyzer   Analyzer
	workers    int
	maxBytes   int64
	onProgress func(Item)
	log        zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds how many files are analyzed at once.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithMaxUpload sets the pre-flight size limit.
func WithMaxUpload(n int64) Option {
	return func(r *Runner) { r.maxBytes = n }
}

// WithProgress registers a callback observing every state transition.
// Calls are serialized.
func WithProgress(f func(Item)) Option {
	return func(r *Runner) { r.onProgress = f }
}

// NewRunner creates a Runner.
func NewRunner(a Analyzer, opts ...Option) *Runner {
	r := &Runner{
		analyzer: a,
		workers:  3,
		maxBytes: service.DefaultMaxUpload,
		log:      logging.Component("batch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run enqueues paths, pre-flights them and analyzes the valid ones. Items
// are never retried. A cancelled context fails the items still in flight.
func (r *Runner) Run(ctx context.Context, paths []string) *Result {
	res := &Result{}
	seen := make(map[string]bool)
	for _, p := range paths {
		name := filepath.Base(p)
		if seen[name] {
			r.log.Debug().Str("path", p).Msg("duplicate file name skipped")
			res.Skipped = append(res.Skipped, p)
			continue
		}
		seen[name] = true

		it := Item{Path: p, Name: name, State: StatePending}
		if info, err := os.Stat(p); err == nil {
			it.Size = info.Size()
		}
		res.Items = append(res.Items, it)
	}

	var mu sync.Mutex
	update := func(i int, f func(*Item)) {
		mu.Lock()
		defer mu.Unlock()
		f(&res.Items[i])
		if r.onProgress != nil {
			r.onProgress(res.Items[i])
		}
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := range res.Items {
		path := res.Items[i].Path

		if err := service.ValidateFile(path, r.maxBytes); err != nil {
			update(i, func(it *Item) {
				it.State = StateError
				it.Err = err
			})
			continue
		}

		g.Go(func() error {
			r.process(ctx, i, path, update)
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range res.Items {
		if it.State == StateSuccess {
			res.Analyzed = append(res.Analyzed, Analyzed{Analysis: it.Analysis, Path: it.Path})
		}
	}
	sort.SliceStable(res.Analyzed, func(a, b int) bool {
		return res.Analyzed[a].Analysis.FileSize < res.Analyzed[b].Analysis.FileSize
	})

	r.log.Info().
		Int("files", len(res.Items)).
		Int("analyzed", len(res.Analyzed)).
		Int("skipped", len(res.Skipped)).
		Msg("batch complete")
	return res
}

func (r *Runner) process(ctx context.Context, i int, path string, update func(int, func(*Item))) {
	fail := func(err error) {
		update(i, func(it *Item) {
			it.State = StateError
			it.Progress = 0
			it.Err = err
		})
		r.log.Warn().Err(err).Str("path", path).Msg("analysis failed")
	}

	update(i, func(it *Item) {
		it.State = StateUploading
		it.Progress = 5
	})

	f, err := os.Open(path)
	if err != nil {
		fail(fmt.Errorf("open: %w", err))
		return
	}
	defer f.Close()

	a, err := r.analyzer.Analyze(ctx, path, f)
	if err != nil {
		fail(err)
		return
	}

	update(i, func(it *Item) {
		it.State = StateAnalyzing
		it.Progress = 75
	})

	update(i, func(it *Item) {
		a.FileSize = it.Size
		it.State = StateSuccess
		it.Progress = 100
		it.Analysis = a
	})
}
