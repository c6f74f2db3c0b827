// Package sanitize defends the write path against stored markup injection
// while preserving the bounded rich-text subset the note editor emits.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Post-sanitization length caps enforced by callers. A sanitized value that
// is empty or exceeds its cap is a validation failure at the call site;
// sanitization itself never fails.
const (
	MaxTitleLength   = 255
	MaxContentLength = 50000
)

var (
	// Hex (#fff, #ffffff) or rgb(r, g, b) color values only. url() and any
	// other functional notation stays out so styles cannot exfiltrate.
	reColor = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|rgb\(\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*\))$`)

	// The blockquote accent the editor produces: "Npx solid #hex".
	reBorderLeft = regexp.MustCompile(`^\d{1,2}px solid #[0-9a-fA-F]{3,8}$`)

	// Pixel lengths, up to four space-separated values for shorthand forms.
	rePixels = regexp.MustCompile(`^\d{1,3}(\.\d+)?px(\s+\d{1,3}(\.\d+)?px){0,3}$`)

	// Comma-separated family names; no quotes, no escapes, no url tricks.
	reFontFamily = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ,-]*$`)

	titlePolicy   = bluemonday.StrictPolicy()
	contentPolicy = newContentPolicy()
)

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"b", "strong", "i", "em", "u", "ins", "s", "strike", "del",
		"p", "br", "ul", "ol", "li", "pre", "code", "blockquote",
		"span", "div", "h1", "h2", "h3", "font",
	)

	styled := []string{"span", "pre", "blockquote"}
	p.AllowAttrs("style").OnElements(styled...)
	p.AllowStyles("color", "background-color").Matching(reColor).OnElements(styled...)
	p.AllowStyles("border-left").Matching(reBorderLeft).OnElements(styled...)
	p.AllowStyles("padding", "margin", "border-radius").Matching(rePixels).OnElements(styled...)
	p.AllowStyles("font-family").Matching(reFontFamily).OnElements(styled...)

	p.AllowAttrs("color").Matching(reColor).OnElements("font")

	return p
}

// Title strips all markup from raw and trims surrounding whitespace. The
// result is plain text; disallowed element content (scripts, styles) is
// discarded entirely rather than unwrapped.
func Title(raw string) string {
	return strings.TrimSpace(titlePolicy.Sanitize(raw))
}

// Content reduces raw to the allow-listed rich-text subset. Disallowed tags,
// attributes, and style declarations are stripped silently, never rejected.
// The operation is idempotent: sanitized output passes through unchanged.
func Content(raw string) string {
	return strings.TrimSpace(contentPolicy.Sanitize(raw))
}
