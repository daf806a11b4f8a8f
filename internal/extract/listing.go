package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	snapshotRE   = regexp.MustCompile(`/web/([0-9]{14})/`)
	questionIDRE = regexp.MustCompile(`/questions/([0-9]+)/`)
)

// extractListing pulls one record per recognizable question summary on a
// tag-listing page. Entries with an imprecise or unreadable view count
// are skipped with a warning rather than guessed at; a page with no
// summaries at all is a valid empty observation.
func extractListing(doc *goquery.Document, key string) (Status, []Record, error) {
	var records []Record

	doc.Find("div.question-summary").Each(func(_ int, q *goquery.Selection) {
		href := q.Find("h3 a").First().AttrOr("href", "")

		m := snapshotRE.FindStringSubmatch(href)
		if m == nil {
			slog.Warn("listing: no snapshot date in link", "href", href, "key", key)
			return
		}
		date := m[1]

		id, ok := summaryID(q, href)
		if !ok {
			slog.Warn("listing: no question id", "href", href, "key", key)
			return
		}

		views := q.Find("div.views").First()
		raw := views.AttrOr("title", "")
		if raw == "" {
			raw = views.Text()
		}
		count, err := parseViews(raw)
		if err != nil {
			slog.Warn("listing: unusable view count", "text", strings.TrimSpace(raw), "key", key, "error", err)
			return
		}

		records = append(records, Record{
			ID:        id,
			Date:      date,
			ViewCount: count,
			Tags:      sortedTagSet(q.Find("a[rel~=tag]")),
		})
	})

	return StatusOK, records, nil
}

// summaryID prefers the element identifier ("question-summary-1234"),
// falling back to the id embedded in the link target.
func summaryID(q *goquery.Selection, href string) (string, bool) {
	if elemID := q.AttrOr("id", ""); elemID != "" {
		parts := strings.Split(elemID, "-")
		if id, ok := numericID(parts[len(parts)-1]); ok {
			return id, true
		}
	}
	if m := questionIDRE.FindStringSubmatch(href); m != nil {
		return numericID(m[1])
	}
	return "", false
}
