package discovery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const nextDataSelector = "script#__NEXT_DATA__"

// NextData returns the trimmed contents of the Next.js __NEXT_DATA__ script,
// or "" when the page has none.
func NextData(markup string) string {
	if !strings.Contains(markup, "__NEXT_DATA__") {
		return ""
	}

	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	doc := goquery.NewDocumentFromNode(root)
	return strings.TrimSpace(doc.Find(nextDataSelector).First().Text())
}
