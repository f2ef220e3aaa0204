// Package scheduler fetches all catalog sources with a bounded number of concurrent fetches.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/feedsnap/pkg/domain"
	"github.com/umputun/feedsnap/pkg/feed"
)

//go:generate moq -out mocks/fetcher.go -pkg mocks -skip-ensure -fmt goimports . Fetcher

// DefaultConcurrency is the number of simultaneous fetches when none is set
const DefaultConcurrency = 5

// Fetcher retrieves and normalises a single source
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source, now time.Time) (feed.Result, error)
}

// Batch runs a fetcher over all sources using a fixed-size pool.
// A free slot is taken by the next source as soon as any fetch settles,
// so a slow source holds up only its own slot, and no longer than its fetch timeout.
type Batch struct {
	fetcher     Fetcher
	concurrency int
}

// Report is the merged outcome of a batch run
type Report struct {
	Items     []domain.Item         // items of all succeeded sources, in catalog order
	Failures  []*feed.FetchError    // one per failed source
	Skipped   []feed.ItemParseError // malformed items dropped from succeeded sources
	Attempted int
	Succeeded int
	Fallbacks int // items dated with the run time
}

// outcome is owned by a single task, no locking needed
type outcome struct {
	res feed.Result
	err *feed.FetchError
}

// New makes a batch with the given concurrency ceiling, non-positive means DefaultConcurrency
func New(fetcher Fetcher, concurrency int) *Batch {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Batch{fetcher: fetcher, concurrency: concurrency}
}

// Run fetches every source exactly once and merges results after all fetches settle.
// Failures never abort the batch, they are returned in Report.Failures.
func (b *Batch) Run(ctx context.Context, sources []domain.Source, now time.Time) Report {
	outcomes := make([]outcome, len(sources))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = b.fetch(ctx, src, now)
			return nil
		})
	}
	_ = g.Wait() // tasks report failures through outcomes, never as errors

	rep := Report{Attempted: len(sources)}
	for _, o := range outcomes {
		if o.err != nil {
			rep.Failures = append(rep.Failures, o.err)
			continue
		}
		rep.Succeeded++
		rep.Items = append(rep.Items, o.res.Items...)
		rep.Skipped = append(rep.Skipped, o.res.Skipped...)
		rep.Fallbacks += o.res.Fallbacks
	}
	return rep
}

func (b *Batch) fetch(ctx context.Context, src domain.Source, now time.Time) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			lgr.Printf("[WARN] fetch of %s panicked: %v", src, r)
			res = outcome{err: &feed.FetchError{Source: src.Title, URL: src.URL, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	lgr.Printf("[DEBUG] fetching %s", src)
	st := time.Now()
	fetched, err := b.fetcher.Fetch(ctx, src, now)
	if err != nil {
		var fe *feed.FetchError
		if !errors.As(err, &fe) {
			fe = &feed.FetchError{Source: src.Title, URL: src.URL, Err: err}
		}
		lgr.Printf("[WARN] failed to fetch %s: %v", src, fe.Err)
		return outcome{err: fe}
	}

	for _, s := range fetched.Skipped {
		lgr.Printf("[DEBUG] %v", s)
	}
	lgr.Printf("[DEBUG] fetched %d items from %s in %v", len(fetched.Items), src, time.Since(st).Round(time.Millisecond))
	return outcome{res: fetched}
}
