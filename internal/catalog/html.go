package catalog

import (
	"strings"

	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "tr": true,
}

// HTMLToText flattens admin-authored rich text into plain lines suitable for a chat bubble.
func HTMLToText(raw string) string {
	lines := htmlLines(raw)
	return strings.Join(lines, "\n")
}

// HTMLToBullets returns one entry per list item, or per line when the markup has no list.
func HTMLToBullets(raw string) []string {
	if !strings.Contains(strings.ToLower(raw), "<li") {
		return htmlLines(raw)
	}
	var (
		items []string
		cur   strings.Builder
		depth int
	)
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return items
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "li" {
				depth++
				cur.Reset()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "li" && depth > 0 {
				depth--
				if item := collapseSpace(cur.String()); item != "" {
					items = append(items, item)
				}
				cur.Reset()
			}
		case html.TextToken:
			if depth > 0 {
				cur.WriteString(string(z.Text()))
				cur.WriteByte(' ')
			}
		}
	}
}

func htmlLines(raw string) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if line := collapseSpace(cur.String()); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return lines
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				flush()
			}
		case html.TextToken:
			cur.WriteString(string(z.Text()))
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
