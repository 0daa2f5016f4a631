package loader

import (
	"html"
	"regexp"
)

// These patterns are a deliberately crude text extraction pass, not an HTML
// parser: malformed markup (unterminated tags, "<" inside attributes) can
// leak fragments into the text or swallow content.
var (
	scriptBlock = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?is)<style.*?>.*?</style>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]+>`)
)

// StripHTML removes script and style blocks, then every remaining tag, and
// finally decodes entities, yielding the visible text.
func StripHTML(text string) string {
	text = scriptBlock.ReplaceAllString(text, " ")
	text = styleBlock.ReplaceAllString(text, " ")
	text = anyTag.ReplaceAllString(text, " ")
	return html.UnescapeString(text)
}
