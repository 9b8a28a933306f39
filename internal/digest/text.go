package digest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText flattens digest item HTML to whitespace-normalized text.
// Block elements are separated so adjacent paragraphs don't run together.
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return collapseSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseSpace(html)
	}
	doc.Find("script, style").Remove()
	doc.Find("p, div, li, br, h1, h2, h3, h4, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return collapseSpace(doc.Text())
}

// Links returns the href of every anchor in html, in document order.
func Links(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			out = append(out, strings.TrimSpace(href))
		}
	})
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
