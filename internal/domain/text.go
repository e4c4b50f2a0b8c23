package domain

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlBreak  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// PlainText turns an HTML message body into readable text.
func PlainText(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return strings.TrimSpace(body)
	}
	text := htmlBreak.ReplaceAllString(body, "\n")
	text = htmlTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
