package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Recognizers shared by the strategy chains. The view-count pattern
// anchors the optional magnitude suffix to trailing whitespace so that
// "5.2k" is seen as imprecise instead of being truncated to 5.
var (
	viewsRE        = regexp.MustCompile(`([0-9]+(?:,[0-9]{3})*)(k?)(?:\s|$)`)
	viewedNTimesRE = regexp.MustCompile(`[Vv]iewed\s+[0-9]+(?:,[0-9]{3})\s+times?`)
	nTimesRE       = regexp.MustCompile(`[0-9]+(?:,[0-9]{3})*\s+times?`)
	viewedRE       = regexp.MustCompile(`[Vv]iewed`)

	atomRE      = regexp.MustCompile(`/([0-9]{14})/.*/question/([0-9]+)`)
	canonicalRE = regexp.MustCompile(`/([0-9]{14})/.*/questions/([0-9]+)`)
	ogURLRE     = regexp.MustCompile(`/([0-9]{14})(?:im_)?/.*/questions/([0-9]+)`)
)

// coreStrategy recovers the (date, id) pair from a head element whose URL
// attribute embeds the snapshot date and the question id.
type coreStrategy struct {
	name     string
	selector string
	attr     string
	re       *regexp.Regexp
}

// Ordered newest-first as link conventions were added over time; each
// entry is tried only when the previous ones matched nothing.
var coreStrategies = []coreStrategy{
	{"atom", `link[rel~=alternate][type="application/atom+xml"]`, "href", atomRE},
	{"canonical", `link[rel~=canonical]`, "href", canonicalRE},
	{"og-url-name", `meta[name="og:url"]`, "content", ogURLRE},
	{"og-url-property", `meta[property="og:url"]`, "content", ogURLRE},
}

// viewStrategy yields a candidate view-count string from one template era.
type viewStrategy struct {
	name string
	text func(doc *goquery.Document) (string, bool)
}

var viewStrategies = []viewStrategy{
	{"2019-title", func(doc *goquery.Document) (string, bool) {
		s := filterAttr(doc.Find("div[title]"), "title", viewedNTimesRE).First()
		return s.AttrOr("title", ""), s.Length() > 0
	}},
	{"2019-main-entity", func(doc *goquery.Document) (string, bool) {
		s := doc.Find(`div[itemprop="mainEntity"] span`).
			FilterFunction(func(_ int, s *goquery.Selection) bool {
				return strings.TrimSpace(s.Text()) == "Viewed"
			}).First()
		if s.Length() == 0 {
			return "", false
		}
		return s.Parent().Text(), true
	}},
	{"2015-header", func(doc *goquery.Document) (string, bool) {
		s := filterText(doc.Find("#question-header div"), viewedNTimesRE).First()
		return s.Text(), s.Length() > 0
	}},
	{"2013-qinfo", func(doc *goquery.Document) (string, bool) {
		return findTextNode(doc.Find("#qinfo"), nTimesRE)
	}},
	{"2009-sidebar", func(doc *goquery.Document) (string, bool) {
		return siblingValue(doc.Find("#sidebar p.label-key"))
	}},
	{"2008-sidebar", func(doc *goquery.Document) (string, bool) {
		return siblingValue(doc.Find("#sidebar p"))
	}},
	{"beta-id", func(doc *goquery.Document) (string, bool) {
		s := doc.Find("#viewcount b").First()
		return s.Text(), s.Length() > 0
	}},
	{"beta-class", func(doc *goquery.Document) (string, bool) {
		s := doc.Find("div.viewcount b").First()
		return s.Text(), s.Length() > 0
	}},
}

// extractDetail recovers the three facts of a question detail page. Any
// missing fact classifies the whole page; an imprecise view count aborts
// it outright.
func extractDetail(doc *goquery.Document, key string) (Status, []Record, error) {
	date, id, ok := coreInfo(doc)
	if !ok {
		return StatusCoreError, nil, ErrNoCoreInfo
	}

	views, err := viewCount(doc)
	if err != nil {
		return StatusViewError, nil, err
	}

	tags := detailTags(doc)
	if len(tags) == 0 {
		return StatusError, nil, ErrNoTags
	}

	return StatusOK, []Record{{ID: id, Date: date, ViewCount: views, Tags: tags}}, nil
}

func coreInfo(doc *goquery.Document) (date, id string, ok bool) {
	for _, st := range coreStrategies {
		val, exists := doc.Find(st.selector).First().Attr(st.attr)
		if !exists {
			continue
		}
		if m := st.re.FindStringSubmatch(val); m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

func viewCount(doc *goquery.Document) (int, error) {
	for _, st := range viewStrategies {
		txt, ok := st.text(doc)
		if !ok {
			continue
		}
		return parseViews(txt)
	}
	return 0, ErrNoViewCount
}

// detailTags scopes tag links to the dedicated container when the era has
// one; the earliest templates scattered them over the whole page.
func detailTags(doc *goquery.Document) []string {
	if doc.Find("div.post-taglist").Length() > 0 {
		return sortedTagSet(doc.Find("div.post-taglist").Find("a[rel~=tag]"))
	}
	return sortedTagSet(doc.Find("a[rel~=tag]"))
}

// filterAttr keeps elements whose attribute matches re.
func filterAttr(sel *goquery.Selection, attr string, re *regexp.Regexp) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return re.MatchString(s.AttrOr(attr, ""))
	})
}

// filterText keeps elements whose text content matches re.
func filterText(sel *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return re.MatchString(s.Text())
	})
}

// findTextNode walks the text nodes beneath sel and returns the first one
// matching re.
func findTextNode(sel *goquery.Selection, re *regexp.Regexp) (string, bool) {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode && re.MatchString(n.Data) {
			found = n.Data
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, n := range sel.Nodes {
		if walk(n) {
			return found, true
		}
	}
	return "", false
}

// siblingValue implements the sidebar label/value convention: a "Viewed"
// label paragraph followed by a sibling paragraph carrying the count.
func siblingValue(labels *goquery.Selection) (string, bool) {
	label := filterText(labels, viewedRE).First()
	if label.Length() == 0 {
		return "", false
	}
	value := filterText(label.NextAll().Filter("p"), nTimesRE).First()
	if value.Length() == 0 {
		return "", false
	}
	return value.Text(), true
}
