// Package digest filters fetched items by recency and aggregates them into a snapshot.
// Everything here is pure, time comes in as arguments.
package digest

import (
	"cmp"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/umputun/feedsnap/pkg/domain"
	"github.com/umputun/feedsnap/pkg/feed"
)

// DefaultWindow is the default recency window
const DefaultWindow = 24 * time.Hour

// Recent returns items published at or after now-window, the boundary is inclusive.
// Items dated by fallback carry the run time and always pass, so a feed with broken
// dates shows up in the snapshot instead of silently disappearing.
func Recent(items []domain.Item, now time.Time, window time.Duration) []domain.Item {
	cutoff := now.Add(-window)
	res := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.PublishedAt.Before(cutoff) {
			continue
		}
		res = append(res, it)
	}
	return res
}

// Options for the aggregator
type Options struct {
	Locale string // collation locale for category ordering, e.g. "fr"
	Dedupe bool   // keep only the newest item per link within a category
}

// Aggregator groups items by category and orders them. Not safe for concurrent use,
// the collator keeps internal buffers.
type Aggregator struct {
	collator *collate.Collator
	dedupe   bool
}

// NewAggregator makes an aggregator for the given options
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{
		collator: collate.New(language.Make(opts.Locale)),
		dedupe:   opts.Dedupe,
	}
}

// Build groups items by category, newest first within a group, groups ordered by category name.
// Categories without items never appear. The input slice is not modified.
func (a *Aggregator) Build(items []domain.Item, generatedAt time.Time) domain.Snapshot {
	byCategory := map[string][]domain.Item{}
	order := []string{}
	for _, it := range items {
		if _, ok := byCategory[it.Category]; !ok {
			order = append(order, it.Category)
		}
		byCategory[it.Category] = append(byCategory[it.Category], it)
	}

	res := domain.Snapshot{Groups: make([]domain.Group, 0, len(order)), GeneratedAt: generatedAt.UTC()}
	for _, cat := range order {
		group := byCategory[cat]
		slices.SortStableFunc(group, func(x, y domain.Item) int {
			return y.PublishedAt.Compare(x.PublishedAt)
		})
		if a.dedupe {
			group = dedupeLinks(group)
		}
		res.Groups = append(res.Groups, domain.Group{Category: cat, Items: group})
		res.TotalArticles += len(group)
	}

	slices.SortFunc(res.Groups, func(x, y domain.Group) int {
		if c := a.collator.CompareString(x.Category, y.Category); c != 0 {
			return c
		}
		return cmp.Compare(x.Category, y.Category)
	})
	return res
}

// dedupeLinks keeps the first item per link, items with placeholder link are all kept
func dedupeLinks(items []domain.Item) []domain.Item {
	seen := map[string]bool{}
	res := items[:0]
	for _, it := range items {
		if it.Link != feed.PlaceholderLink {
			if seen[it.Link] {
				continue
			}
			seen[it.Link] = true
		}
		res = append(res, it)
	}
	return res
}
