// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/source"
	"github.com/poiesic/lexsearch/tree"
)

// ProgressReporter receives ingestion progress, one unit per identifier.
// index.ProgressTracker satisfies it.
type ProgressReporter interface {
	Start(total int)
	Increment(delta int)
	Finish()
}

type noopProgress struct{}

func (noopProgress) Start(int)     {}
func (noopProgress) Increment(int) {}
func (noopProgress) Finish()       {}

// Ingester adds source documents to document trees.
type Ingester struct {
	source      source.DocumentSource
	pool        *ants.Pool
	windowSize  int
	skipInvalid bool
	progress    ProgressReporter
	logger      *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester) error

// WithPoolSize sets the number of concurrent fetches.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(i *Ingester) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if i.pool != nil {
			i.pool.Release()
		}
		i.pool = pool
		return nil
	}
}

// WithWindowSize sets how many documents are fetched before they are added
// to the tree. Default is 256.
func WithWindowSize(size int) Option {
	return func(i *Ingester) error {
		if size < 1 {
			size = 1
		}
		i.windowSize = size
		return nil
	}
}

// WithSkipInvalid makes malformed and duplicate identifiers a counted skip
// instead of an error.
func WithSkipInvalid(skip bool) Option {
	return func(i *Ingester) error {
		i.skipInvalid = skip
		return nil
	}
}

// WithProgress sets a progress reporter.
func WithProgress(progress ProgressReporter) Option {
	return func(i *Ingester) error {
		if progress == nil {
			progress = noopProgress{}
		}
		i.progress = progress
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// NewIngester creates an ingester reading from src.
// Call Release when the ingester is no longer needed.
func NewIngester(src source.DocumentSource, opts ...Option) (*Ingester, error) {
	if src == nil {
		return nil, ErrSourceRequired
	}

	i := &Ingester{
		source:     src,
		windowSize: 256,
		progress:   noopProgress{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			i.Release()
			return nil, err
		}
	}
	if i.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU(), 1))
		if err != nil {
			return nil, err
		}
		i.pool = pool
	}
	i.logger = i.logger.With("component", "ingester")
	return i, nil
}

// Release stops the worker pool.
func (i *Ingester) Release() {
	if i.pool != nil {
		i.pool.Release()
		i.pool = nil
	}
}

// fetched is the result slot of one identifier.
type fetched struct {
	text    string
	ok      bool
	err     error
	invalid error
}

// Ingest fetches the documents named by identifiers and adds them to t in
// list order. The summary is valid even when an error is returned and
// reflects the work done up to the failure.
func (i *Ingester) Ingest(ctx context.Context, t *tree.Tree, identifiers []string) (core.IngestSummary, error) {
	if t == nil {
		return core.IngestSummary{}, ErrTreeRequired
	}

	start := time.Now()
	summary := core.IngestSummary{Requested: len(identifiers)}
	i.progress.Start(len(identifiers))
	defer i.progress.Finish()

	for lo := 0; lo < len(identifiers); lo += i.windowSize {
		window := identifiers[lo:min(lo+i.windowSize, len(identifiers))]
		slots, err := i.fetchWindow(ctx, t, window)
		if err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
		if err := i.addWindow(t, window, slots, &summary); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
	}

	summary.Elapsed = time.Since(start)
	i.logger.Info("ingestion complete",
		"requested", summary.Requested,
		"added", summary.Added,
		"absent", summary.Absent,
		"failed", summary.Failed,
		"invalid", summary.Invalid,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// fetchWindow fetches every identifier of window into its positional slot.
func (i *Ingester) fetchWindow(ctx context.Context, t *tree.Tree, window []string) ([]fetched, error) {
	slots := make([]fetched, len(window))
	var wg sync.WaitGroup

	for n, identifier := range window {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		if _, _, err := tree.ParsePath(identifier, t.IdentifierPrefix()); err != nil {
			slots[n].invalid = err
			continue
		}

		wg.Add(1)
		err := i.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				slots[n].err = ctx.Err()
				return
			}
			text, ok, err := i.source.Fetch(ctx, identifier)
			if errors.Is(err, source.ErrInvalidIdentifier) {
				slots[n].invalid = err
				return
			}
			slots[n] = fetched{text: text, ok: ok, err: err}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submitting fetch task: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// addWindow adds fetched documents to t in order and updates summary.
func (i *Ingester) addWindow(t *tree.Tree, window []string, slots []fetched, summary *core.IngestSummary) error {
	for n, identifier := range window {
		slot := slots[n]
		i.progress.Increment(1)

		if slot.invalid != nil {
			if err := i.invalid(identifier, slot.invalid, summary); err != nil {
				return err
			}
			continue
		}
		if slot.err != nil {
			i.logger.Warn("failed to fetch document", "identifier", identifier, "error", slot.err)
			summary.Failed++
			continue
		}
		if !slot.ok {
			i.logger.Debug("document absent", "identifier", identifier)
			summary.Absent++
			continue
		}

		if _, err := t.AddDocument(identifier, slot.text); err != nil {
			if errors.Is(err, core.ErrMalformedIdentifier) || errors.Is(err, core.ErrDuplicateIdentifier) {
				if err := i.invalid(identifier, err, summary); err != nil {
					return err
				}
				continue
			}
			return err
		}
		summary.Added++
	}
	return nil
}

func (i *Ingester) invalid(identifier string, err error, summary *core.IngestSummary) error {
	if !i.skipInvalid {
		return err
	}
	i.logger.Warn("skipping invalid identifier", "identifier", identifier, "error", err)
	summary.Invalid++
	return nil
}
