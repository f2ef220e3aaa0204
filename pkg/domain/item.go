package domain

import "time"

// Item represents a single normalised article taken from a feed.
// JSON field names are consumed by the display layer and must not change.
type Item struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"pubDate"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
}

// Group holds items of one category, newest first
type Group struct {
	Category string `json:"category"`
	Items    []Item `json:"items"`
}

// Snapshot is the aggregated result of a single run
type Snapshot struct {
	Groups        []Group   `json:"groups"`
	GeneratedAt   time.Time `json:"generatedAt"`
	TotalArticles int       `json:"totalArticles"`
}

// EmptySnapshot returns a snapshot with no groups, used as the empty state by readers
func EmptySnapshot() Snapshot {
	return Snapshot{Groups: []Group{}}
}

// Count returns the number of items across all groups
func (s Snapshot) Count() int {
	res := 0
	for _, g := range s.Groups {
		res += len(g.Items)
	}
	return res
}
