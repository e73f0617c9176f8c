// Package htmltext reduces rich-text assignment descriptions to plain text.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// Extract returns the visible text of an HTML fragment. Text nodes are trimmed and
// joined with newlines; script and style content is dropped. Malformed markup is
// handled on a best-effort basis and never fails.
func Extract(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	var parts []string
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(strings.Join(parts, "\n"))
		case html.StartTagToken:
			if hidden(z) {
				skip++
			}
		case html.EndTagToken:
			if hidden(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}

func hidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
