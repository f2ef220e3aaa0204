// Package catalog reads the OPML catalog of feed sources grouped by category.
package catalog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/go-pkgz/lgr"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/umputun/feedsnap/pkg/domain"
)

// DefaultCategory is used for category outlines without text and title
const DefaultCategory = "Other"

// ParseError is returned when the catalog can't be read or is not a valid OPML outline.
// It is fatal for a run, there is nothing to fetch without a catalog.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse catalog: %v", e.Err)
	}
	return fmt.Sprintf("parse catalog %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type opmlDoc struct {
	XMLName xml.Name  `xml:"opml"`
	Body    *opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []outline `xml:"outline"`
}

// outline is both a category and a feed node, OPML doesn't distinguish them.
// encoding/xml always collects children into a slice, so a category with
// a single child goes through the same path as one with many.
type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr"`
	XMLURL   string    `xml:"xmlUrl,attr"`
	Outlines []outline `xml:"outline"`
}

// Load reads catalog file and returns flat list of sources
func Load(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path) //nolint:gosec // catalog path comes from CLI flag or config
	if err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}

	sources, err := Parse(bytes.NewReader(data))
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return sources, nil
}

// Parse decodes OPML document and flattens category outlines into sources.
// Leaves without xmlUrl are skipped, nested groups below a category are flattened into it.
func Parse(r io.Reader) ([]domain.Source, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc opmlDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: errors.New("no opml element found")}
		}
		return nil, &ParseError{Err: fmt.Errorf("decode xml: %w", err)}
	}
	if doc.Body == nil {
		return nil, &ParseError{Err: errors.New("missing opml body")}
	}

	res := []domain.Source{}
	for _, cat := range doc.Body.Outlines {
		if len(cat.Outlines) == 0 {
			if cat.XMLURL != "" {
				lgr.Printf("[DEBUG] skip top-level feed %q without category", cat.XMLURL)
			}
			continue
		}
		name := firstNonEmpty(cat.Text, cat.Title, DefaultCategory)
		seen := map[string]bool{}
		for _, src := range collect(cat.Outlines, name) {
			if seen[src.URL] {
				lgr.Printf("[DEBUG] skip duplicate feed %s in category %q", src.URL, name)
				continue
			}
			seen[src.URL] = true
			res = append(res, src)
		}
	}
	return res, nil
}

func collect(outlines []outline, category string) []domain.Source {
	res := []domain.Source{}
	for _, o := range outlines {
		if len(o.Outlines) > 0 {
			res = append(res, collect(o.Outlines, category)...)
		}
		feedURL := strings.TrimSpace(o.XMLURL)
		if feedURL == "" {
			if len(o.Outlines) == 0 {
				lgr.Printf("[DEBUG] skip outline %q in %q, no xmlUrl", firstNonEmpty(o.Text, o.Title), category)
			}
			continue
		}
		res = append(res, domain.Source{
			Title:    firstNonEmpty(o.Text, o.Title, TitleFromURL(feedURL)),
			URL:      feedURL,
			Category: category,
		})
	}
	return res
}

// TitleFromURL derives a display title from feed endpoint, registrable domain if possible
func TitleFromURL(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	domainName, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domainName
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
