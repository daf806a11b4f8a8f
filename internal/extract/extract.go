// Package extract turns archived Stack Overflow HTML into structured
// question observations. A decade of site redesigns means every fact is
// recovered through an ordered chain of per-era strategies: each strategy
// is tried only when the previous one yields nothing, so supporting a new
// template era is an addition, not a rewrite.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/YesIKnowIT/SODump/internal/capture"
)

// Status classifies the outcome of extracting one page. The values are
// persisted verbatim into the sources table.
type Status string

const (
	StatusOK        Status = "OK"         // records extracted (possibly none, for listings)
	StatusError     Status = "ERROR"      // page understood but a required fact is unusable
	StatusSysError  Status = "SYSERR"     // unexpected failure inside the engine
	StatusCoreError Status = "DATAERR_CD" // question id / capture date not found
	StatusViewError Status = "DATAERR_VC" // view count not found or imprecise
)

// Record is one extracted question observation.
type Record struct {
	ID        string   // numeric question id
	Date      string   // 14-digit capture date
	ViewCount int      // exact view count
	Tags      []string // sorted, de-duplicated tag names
}

var (
	// ErrImpreciseViews marks a view count expressed with a magnitude
	// suffix ("5.2k"). Rounding it would silently corrupt aggregates,
	// so the page is rejected instead.
	ErrImpreciseViews = errors.New("imprecise view count")

	// ErrNoCoreInfo means no strategy recovered the (date, id) pair.
	ErrNoCoreInfo = errors.New("core info not found")

	// ErrNoViewCount means no strategy recovered a view count.
	ErrNoViewCount = errors.New("view count not found")

	// ErrNoTags means the page carries no recognizable tag links.
	ErrNoTags = errors.New("tags not found")
)

// Extract parses text and returns the records found on the page addressed
// by key. The key selects the mode: tag-listing pages yield zero or more
// records, question detail pages yield exactly one or none. A non-OK
// status is a classification outcome, not a transport error; err carries
// the detail for logging.
func Extract(text []byte, key string) (Status, []Record, error) {
	doc, err := parse(text)
	if err != nil {
		return StatusSysError, nil, fmt.Errorf("parse %s: %w", key, err)
	}

	if capture.IsListing(key) {
		return extractListing(doc, key)
	}
	return extractDetail(doc, key)
}

func parse(text []byte) (*goquery.Document, error) {
	node, err := html.Parse(bytes.NewReader(text))
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(node), nil
}

// parseViews extracts an exact integer from a view-count string such as
// "Viewed 1,234 times". A magnitude suffix yields ErrImpreciseViews; it
// must never be approximated.
func parseViews(s string) (int, error) {
	m := viewsRE.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrNoViewCount
	}
	if m[2] != "" {
		return 0, fmt.Errorf("%w: %q", ErrImpreciseViews, strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, ErrNoViewCount
	}
	return n, nil
}

// sortedTagSet returns the sorted, de-duplicated texts of tag links.
func sortedTagSet(sel *goquery.Selection) []string {
	seen := map[string]bool{}
	var tags []string
	sel.Each(func(_ int, s *goquery.Selection) {
		tag := strings.TrimSpace(s.Text())
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	})
	sort.Strings(tags)
	return tags
}

// numericID normalizes a question id, rejecting anything non-numeric.
func numericID(s string) (string, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(n, 10), true
}
