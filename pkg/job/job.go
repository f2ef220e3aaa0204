// Package job runs one aggregation cycle: catalog, fetch, filter, aggregate, write.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedsnap/pkg/catalog"
	"github.com/umputun/feedsnap/pkg/digest"
	"github.com/umputun/feedsnap/pkg/domain"
	"github.com/umputun/feedsnap/pkg/feed"
	"github.com/umputun/feedsnap/pkg/scheduler"
)

//go:generate moq -out mocks/writer.go -pkg mocks -skip-ensure -fmt goimports . Writer

// Writer persists the snapshot
type Writer interface {
	Write(ctx context.Context, snap domain.Snapshot) error
}

// Params defines a job. Zero Window and Concurrency get defaults.
type Params struct {
	Catalog     string // path to OPML catalog
	Fetcher     scheduler.Fetcher
	Writer      Writer
	Concurrency int
	Window      time.Duration
	Locale      string
	Dedupe      bool
}

// Job is a single run of the pipeline, it keeps no state between runs
type Job struct {
	Params
}

// Summary describes what a run did
type Summary struct {
	Sources   int
	Failures  []*feed.FetchError
	Skipped   int // malformed items dropped
	Fallbacks int // items dated with the run time
	Fetched   int // items from succeeded sources
	Snapshot  domain.Snapshot
}

// New makes a job
func New(p Params) *Job {
	if p.Window <= 0 {
		p.Window = digest.DefaultWindow
	}
	return &Job{Params: p}
}

// Run executes the pipeline with now as the run time. Only a broken catalog or a failed
// snapshot write fail the run, unavailable feeds are reported in Summary.Failures.
func (j *Job) Run(ctx context.Context, now time.Time) (Summary, error) {
	sources, err := catalog.Load(j.Catalog)
	if err != nil {
		return Summary{}, fmt.Errorf("load catalog: %w", err)
	}
	lgr.Printf("[INFO] fetching %d feeds, window %v, concurrency %d", len(sources), j.Window, j.Concurrency)

	st := time.Now()
	rep := scheduler.New(j.Fetcher, j.Concurrency).Run(ctx, sources, now)
	lgr.Printf("[INFO] fetched %d items from %d/%d feeds in %v", len(rep.Items), rep.Succeeded, rep.Attempted,
		time.Since(st).Round(time.Millisecond))

	recent := digest.Recent(rep.Items, now, j.Window)
	snap := digest.NewAggregator(digest.Options{Locale: j.Locale, Dedupe: j.Dedupe}).Build(recent, now)

	if err := j.Writer.Write(ctx, snap); err != nil {
		return Summary{}, fmt.Errorf("save snapshot: %w", err)
	}

	summary := Summary{
		Sources:   len(sources),
		Failures:  rep.Failures,
		Skipped:   len(rep.Skipped),
		Fallbacks: rep.Fallbacks,
		Fetched:   len(rep.Items),
		Snapshot:  snap,
	}
	summary.report(j.Window)
	return summary, nil
}

// report logs failed feeds as warnings and the totals
func (s Summary) report(window time.Duration) {
	for _, f := range s.Failures {
		lgr.Printf("[WARN] feed %q unavailable: %v", f.Source, f.Err)
	}
	if len(s.Failures) > 0 {
		lgr.Printf("[WARN] %d of %d feeds failed", len(s.Failures), s.Sources)
	}
	if s.Skipped > 0 {
		lgr.Printf("[INFO] %d malformed items skipped", s.Skipped)
	}
	if s.Fallbacks > 0 {
		lgr.Printf("[INFO] %d items without usable date kept with run time", s.Fallbacks)
	}
	lgr.Printf("[INFO] %d articles in the last %v across %d categories",
		s.Snapshot.TotalArticles, window, len(s.Snapshot.Groups))
}
