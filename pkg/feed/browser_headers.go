package feed

import (
	"net/http"

	"golang.org/x/text/language"
)

// acceptLanguages maps base language of the configured locale to Accept-Language value
var acceptLanguages = map[string]string{
	"en": "en-US,en;q=0.9",
	"fr": "fr-FR,fr;q=0.9,en;q=0.8",
	"de": "de-DE,de;q=0.9,en;q=0.8",
	"es": "es-ES,es;q=0.9,en;q=0.8",
}

// setFeedHeaders adds browser-like headers for feed requests.
// Some publishers reject requests without Accept and Accept-Language.
func setFeedHeaders(req *http.Request, userAgent, locale string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/feed+json,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept-Language", acceptLanguage(locale))
}

func acceptLanguage(locale string) string {
	base, _ := language.Make(locale).Base()
	if v, ok := acceptLanguages[base.String()]; ok {
		return v
	}
	return acceptLanguages["en"]
}
