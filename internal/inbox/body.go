package inbox

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	tagRegex      = regexp.MustCompile(`<[^>]+>`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// BodyText returns the text the extraction patterns should run against.
// Plain text wins when the mail carries one; HTML-only mail is converted
// so form feeds that send only an HTML part still extract.
func (msg Message) BodyText() string {
	if strings.TrimSpace(msg.Body) != "" {
		return msg.Body
	}
	if msg.HTMLBody != "" {
		return htmlToText(msg.HTMLBody)
	}
	return ""
}

// htmlToText renders an HTML body as plain text, keeping line structure so
// label-per-line patterns still line up.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Fallback to a bare tag strip
		return strings.TrimSpace(tagRegex.ReplaceAllString(html, " "))
	}

	doc.Find("script, style").Remove()

	// Force line breaks where HTML implies them, otherwise goquery's Text
	// runs everything together.
	doc.Find("br").Each(func(i int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("p, div, tr, li, h1, h2, h3, h4").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	text = blankLineRuns.ReplaceAllString(text, "\n\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
