// Package capture models entries of the Wayback Machine CDX index and the
// deterministic mapping from a capture to its storage key and fetch URL.
// The storage key doubles as the deduplication identity across the whole
// pipeline, so the derivation must stay pure and total.
package capture

import (
	"path"
	"regexp"
	"strings"
)

// WaybackBase is the replay endpoint serving archived page content.
const WaybackBase = "https://web.archive.org/web"

// Capture is one indexed snapshot record as returned by the CDX API.
// Identity is (Timestamp, Original); the struct is never mutated.
type Capture struct {
	Timestamp  string // 14-digit snapshot time (YYYYMMDDhhmmss)
	Original   string // URL that was archived
	StatusCode string // status code recorded at capture time
}

// replayRE matches a Wayback replay URL and captures the snapshot date and
// the original URL. The optional flag suffix (im_, if_, ...) appears on
// media and frame captures.
var replayRE = regexp.MustCompile(`/web/([0-9]{14})(?:[a-z]+_)?/(.+)`)

// Derive maps a capture to its storage key and fetch URL.
//
// The key is a normalized relative path: the timestamp is fanned out into
// year/month/day prefixes so no directory grows unbounded, query strings
// are folded onto their parent segment, trailing-slash paths get a
// reserved ".index" leaf, default :80 ports are dropped, and protocol
// markers are stripped wherever they occur because Wayback redirects
// re-embed them after the date.
func Derive(c Capture) (key, url string) {
	ts := c.Timestamp
	url = WaybackBase + "/" + ts + "/" + c.Original

	raw := "archive/" + prefix(ts, 4) + "/" + prefix(ts, 6) + "/" + prefix(ts, 8) + "/" + ts + "/" + c.Original
	raw = strings.ReplaceAll(raw, "/?", "?")
	if strings.HasSuffix(raw, "/") {
		raw += ".index"
	}
	raw = strings.ReplaceAll(raw, ":80/", "/")

	parts := strings.Split(raw, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "http:" || part == "https:" || part == "" {
			continue
		}
		kept = append(kept, part)
	}

	return path.Clean(strings.Join(kept, "/")), url
}

// prefix keeps the derivation total even for timestamps shorter than the
// canonical 14 digits.
func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// FromReplayURL parses a Wayback replay URL (typically a redirect Location
// header) back into a capture. The reported status code is the one of the
// capture we were redirected to, which the index lists as successful.
func FromReplayURL(replay string) (Capture, bool) {
	m := replayRE.FindStringSubmatch(replay)
	if m == nil {
		return Capture{}, false
	}
	return Capture{Timestamp: m[1], Original: m[2], StatusCode: "200"}, true
}

// IsListing reports whether a storage key addresses a tag-listing page
// rather than a question detail page.
func IsListing(key string) bool {
	return strings.Contains(key, "/tagged/")
}
