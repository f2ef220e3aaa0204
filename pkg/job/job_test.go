package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/feedsnap/pkg/catalog"
	"github.com/umputun/feedsnap/pkg/domain"
	"github.com/umputun/feedsnap/pkg/feed"
	"github.com/umputun/feedsnap/pkg/job/mocks"
	smocks "github.com/umputun/feedsnap/pkg/scheduler/mocks"
	"github.com/umputun/feedsnap/pkg/snapshot"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.opml")
	doc := `<?xml version="1.0" encoding="UTF-8"?><opml version="2.0"><head><title>t</title></head><body>` +
		body + `</body></opml>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func rssWith(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>f</title><link>https://example.com</link>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(title, link, pubDate string) string {
	return fmt.Sprintf("<item><title>%s</title><link>%s</link><pubDate>%s</pubDate></item>", title, link, pubDate)
}

func TestJob_Run(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(rssWith()))
	}))
	defer cloud.Close()

	security := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssWith(
			rssItem("fresh", "https://example.com/fresh", now.Add(-2*time.Hour).Format(time.RFC1123Z)),
			rssItem("stale", "https://example.com/stale", now.Add(-48*time.Hour).Format(time.RFC1123Z)),
		)))
	}))
	defer security.Close()

	catPath := writeCatalog(t, fmt.Sprintf(`
		<outline text="Cloud"><outline type="rss" text="Slow Cloud" xmlUrl="%s"/></outline>
		<outline text="Security"><outline type="rss" text="Sec News" xmlUrl="%s"/></outline>`, cloud.URL, security.URL))
	out := filepath.Join(t.TempDir(), "static", "rss-feed-cache.json")

	j := New(Params{
		Catalog:     catPath,
		Fetcher:     feed.NewHTTPFetcher(feed.Params{Timeout: 100 * time.Millisecond, Locale: "fr"}),
		Writer:      snapshot.NewWriter(out),
		Concurrency: 5,
		Locale:      "fr",
	})
	summary, err := j.Run(context.Background(), now)
	require.NoError(t, err, "unavailable feed doesn't fail the run")

	assert.Equal(t, 2, summary.Sources)
	assert.Equal(t, 2, summary.Fetched)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "Slow Cloud", summary.Failures[0].Source)
	assert.True(t, summary.Failures[0].Timeout())

	snap, err := snapshot.Load(out)
	require.NoError(t, err)
	assert.Equal(t, now, snap.GeneratedAt)
	assert.Equal(t, 1, snap.TotalArticles)
	require.Len(t, snap.Groups, 1, "empty Cloud group omitted")
	assert.Equal(t, "Security", snap.Groups[0].Category)
	require.Len(t, snap.Groups[0].Items, 1)
	assert.Equal(t, domain.Item{Title: "fresh", Link: "https://example.com/fresh", PublishedAt: now.Add(-2 * time.Hour),
		Source: "Sec News", Category: "Security"}, snap.Groups[0].Items[0])
}

func TestJob_RunMalformedDateKeptAtHead(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssWith(
			rssItem("dated", "https://example.com/dated", now.Add(-time.Hour).Format(time.RFC1123Z)),
			rssItem("undated", "https://example.com/undated", "sometime last week"),
		)))
	}))
	defer server.Close()

	catPath := writeCatalog(t, fmt.Sprintf(`<outline text="Dev"><outline type="rss" text="Blog" xmlUrl="%s"/></outline>`, server.URL))
	writer := &mocks.WriterMock{WriteFunc: func(ctx context.Context, snap domain.Snapshot) error { return nil }}

	summary, err := New(Params{Catalog: catPath, Writer: writer,
		Fetcher: feed.NewHTTPFetcher(feed.Params{Timeout: time.Second})}).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fallbacks)

	require.Len(t, writer.WriteCalls(), 1)
	snap := writer.WriteCalls()[0].Snap
	require.Len(t, snap.Groups, 1)
	require.Len(t, snap.Groups[0].Items, 2)
	assert.Equal(t, "undated", snap.Groups[0].Items[0].Title)
	assert.Equal(t, now, snap.Groups[0].Items[0].PublishedAt)
	assert.Equal(t, "dated", snap.Groups[0].Items[1].Title)
}

func TestJob_RunPartialFailureCounts(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	var outlines strings.Builder
	for i := range 6 {
		fmt.Fprintf(&outlines, `<outline type="rss" text="feed-%d" xmlUrl="https://example.com/%d"/>`, i, i)
	}
	catPath := writeCatalog(t, `<outline text="Mixed">`+outlines.String()+`</outline>`)

	// odd feeds fail, even ones return 3 fresh items and 1 old
	fetcher := &smocks.FetcherMock{
		FetchFunc: func(ctx context.Context, src domain.Source, now time.Time) (feed.Result, error) {
			var n int
			_, _ = fmt.Sscanf(src.Title, "feed-%d", &n)
			if n%2 == 1 {
				return feed.Result{}, &feed.FetchError{Source: src.Title, URL: src.URL, Err: errors.New("refused")}
			}
			res := feed.Result{}
			for i := range 4 {
				age := time.Duration(i+1) * time.Hour
				if i == 3 {
					age = 30 * time.Hour
				}
				res.Items = append(res.Items, domain.Item{Title: fmt.Sprintf("%s/%d", src.Title, i), Link: "#",
					PublishedAt: now.Add(-age), Source: src.Title, Category: src.Category})
			}
			return res, nil
		},
	}
	writer := &mocks.WriterMock{WriteFunc: func(ctx context.Context, snap domain.Snapshot) error { return nil }}

	summary, err := New(Params{Catalog: catPath, Fetcher: fetcher, Writer: writer, Concurrency: 2}).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Len(t, fetcher.FetchCalls(), 6)
	assert.Len(t, summary.Failures, 3)
	assert.Equal(t, 12, summary.Fetched)
	assert.Equal(t, 9, summary.Snapshot.TotalArticles)
	assert.Equal(t, summary.Snapshot.Count(), summary.Snapshot.TotalArticles)
	assert.Equal(t, summary.Snapshot, writer.WriteCalls()[0].Snap)
}

func TestJob_RunFatalErrors(t *testing.T) {
	t.Run("broken catalog", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.opml")
		require.NoError(t, os.WriteFile(path, []byte("<<< definitely not xml"), 0o600))
		fetcher := &smocks.FetcherMock{}
		writer := &mocks.WriterMock{}

		_, err := New(Params{Catalog: path, Fetcher: fetcher, Writer: writer}).Run(context.Background(), time.Now())
		require.Error(t, err)
		var pe *catalog.ParseError
		require.ErrorAs(t, err, &pe)
		assert.Empty(t, fetcher.FetchCalls())
		assert.Empty(t, writer.WriteCalls(), "previous snapshot left untouched")
	})

	t.Run("missing catalog", func(t *testing.T) {
		_, err := New(Params{Catalog: "/no/such/catalog.opml", Fetcher: &smocks.FetcherMock{},
			Writer: &mocks.WriterMock{}}).Run(context.Background(), time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load catalog")
	})

	t.Run("write failure", func(t *testing.T) {
		catPath := writeCatalog(t, `<outline text="Dev"><outline type="rss" text="Blog" xmlUrl="https://example.com/rss"/></outline>`)
		fetcher := &smocks.FetcherMock{
			FetchFunc: func(ctx context.Context, src domain.Source, now time.Time) (feed.Result, error) {
				return feed.Result{}, nil
			},
		}
		writer := &mocks.WriterMock{WriteFunc: func(ctx context.Context, snap domain.Snapshot) error {
			return &snapshot.WriteError{Path: "/ro/snap.json", Err: os.ErrPermission}
		}}

		_, err := New(Params{Catalog: catPath, Fetcher: fetcher, Writer: writer}).Run(context.Background(), time.Now())
		require.Error(t, err)
		var we *snapshot.WriteError
		require.ErrorAs(t, err, &we)
		assert.ErrorIs(t, err, os.ErrPermission)
	})
}
