package feed

import (
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/language"

	"github.com/umputun/feedsnap/pkg/domain"
)

// PlaceholderLink is used for items without a link
const PlaceholderLink = "#"

// untitledLabels holds the localized label for items without a title, keyed by base language
var untitledLabels = map[string]string{
	"en": "Untitled",
	"fr": "Sans titre",
	"de": "Ohne Titel",
	"es": "Sin título",
}

// Policy defines what goes into item fields missing in the feed
type Policy struct {
	Untitled    string // title for items without one
	Placeholder string // link for items without one
}

// DefaultPolicy returns the fallback policy for the given locale, english for unknown locales
func DefaultPolicy(locale string) Policy {
	return Policy{Untitled: UntitledLabel(locale), Placeholder: PlaceholderLink}
}

// UntitledLabel returns the localized label for untitled items
func UntitledLabel(locale string) string {
	base, _ := language.Make(locale).Base()
	if v, ok := untitledLabels[base.String()]; ok {
		return v
	}
	return untitledLabels["en"]
}

// Result is a successfully fetched source
type Result struct {
	Items     []domain.Item
	Skipped   []ItemParseError
	Fallbacks int // items dated with the run time because the feed had no usable date
}

// entry collects optional fields of a feed item before fallbacks are applied.
// Feeds differ in which of these they carry, nothing here is guaranteed.
type entry struct {
	title       string
	link        string
	description string
	content     string
	published   *time.Time
}

var stripTags = bluemonday.StrictPolicy()

// normalize converts parsed feed items into domain items, applying the policy fallbacks.
// Malformed items are reported in Result.Skipped and dropped, the rest is kept.
func (p Policy) normalize(feed *gofeed.Feed, src domain.Source, now time.Time) Result {
	res := Result{Items: make([]domain.Item, 0, len(feed.Items))}
	base := baseURL(feed.Link, src.URL)

	for i, it := range feed.Items {
		if it == nil {
			res.Skipped = append(res.Skipped, ItemParseError{Source: src.Title, Index: i, Reason: "empty item"})
			continue
		}
		e := toEntry(it)
		if e.title == "" && e.link == "" && e.description == "" && e.content == "" {
			res.Skipped = append(res.Skipped, ItemParseError{Source: src.Title, Index: i, Reason: "no title, link or content"})
			continue
		}

		item := domain.Item{Title: e.title, Link: e.link, Source: src.Title, Category: src.Category}
		if item.Link != "" {
			link, err := resolveLink(base, item.Link)
			if err != nil {
				res.Skipped = append(res.Skipped, ItemParseError{Source: src.Title, Index: i, Reason: err.Error()})
				continue
			}
			item.Link = link
		}
		if item.Title == "" {
			item.Title = p.Untitled
		}
		if item.Link == "" {
			item.Link = p.Placeholder
		}

		// no usable date means the item is dated by the run time, so it always passes the recency filter
		if e.published != nil {
			item.PublishedAt = e.published.UTC()
		} else {
			item.PublishedAt = now.UTC()
			res.Fallbacks++
		}
		res.Items = append(res.Items, item)
	}
	return res
}

func toEntry(it *gofeed.Item) entry {
	e := entry{
		title:       cleanText(it.Title),
		link:        strings.TrimSpace(it.Link),
		description: strings.TrimSpace(it.Description),
		content:     strings.TrimSpace(it.Content),
	}
	if e.link == "" {
		for _, l := range it.Links {
			if l = strings.TrimSpace(l); l != "" {
				e.link = l
				break
			}
		}
	}

	switch {
	case it.PublishedParsed != nil:
		e.published = it.PublishedParsed
	case it.UpdatedParsed != nil:
		e.published = it.UpdatedParsed
	default:
		e.published = parseDate(it.Published, it.Updated)
	}
	return e
}

// parseDate tries formats gofeed doesn't recognise, nil if none parses
func parseDate(vals ...string) *time.Time {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if t, err := dateparse.ParseIn(v, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// cleanText strips html markup and collapses whitespace
func cleanText(s string) string {
	s = html.UnescapeString(stripTags.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func baseURL(candidates ...string) *url.URL {
	for _, c := range candidates {
		if u, err := url.Parse(c); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}

// resolveLink makes relative links absolute and rejects anything but http(s)
func resolveLink(base *url.URL, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", &url.Error{Op: "parse link", URL: link, Err: err}
	}
	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &url.Error{Op: "check link", URL: link, Err: errUnsupportedScheme}
	}
	return u.String(), nil
}
