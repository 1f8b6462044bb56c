package pagefetch

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Extractor reduces a raw HTML document to plain text. Implementations must be
// safe for concurrent use.
type Extractor interface {
	Extract(raw []byte) (string, error)
}

// ExtractorFunc adapts an ordinary function to the [Extractor] interface.
type ExtractorFunc func(raw []byte) (string, error)

// Extract calls f(raw).
func (f ExtractorFunc) Extract(raw []byte) (string, error) { return f(raw) }

var (
	scriptBlock = regexp.MustCompile(`(?i)<script[\s\S]*?</script>`)
	styleBlock  = regexp.MustCompile(`(?i)<style[\s\S]*?</style>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)

	// wideSpace matches the same whitespace set as an ECMAScript \s, which
	// includes NBSP and the Unicode space separators that RE2's \s leaves out.
	wideSpace = regexp.MustCompile(`[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}]{3,}`)
)

// RegexExtractor is the default, deliberately approximate HTML reducer.
//
// It drops script and style blocks, replaces every remaining tag with a space
// and collapses runs of three or more whitespace characters into a newline.
// Malformed markup may leak fragments into the output.
type RegexExtractor struct{}

// Extract implements [Extractor].
func (RegexExtractor) Extract(raw []byte) (string, error) {
	out := scriptBlock.ReplaceAll(raw, nil)
	out = styleBlock.ReplaceAll(out, nil)
	out = anyTag.ReplaceAll(out, []byte(" "))
	out = wideSpace.ReplaceAll(out, []byte("\n"))
	return string(out), nil
}

// TokenizerExtractor walks the document with the x/net/html tokenizer and
// keeps text nodes outside script, style and noscript elements. Whitespace is
// normalised the same way as [RegexExtractor] so the two are interchangeable.
type TokenizerExtractor struct{}

// Extract implements [Extractor].
func (TokenizerExtractor) Extract(raw []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(raw))
	var (
		sb   strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("pagefetch: tokenize: %w", err)
			}
			return wideSpace.ReplaceAllString(sb.String(), "\n"), nil
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(name) {
				skip++
			}
			sb.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(name) && skip > 0 {
				skip--
			}
			sb.WriteByte(' ')
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func isHidden(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "noscript":
		return true
	}
	return false
}

// ExtractorByName returns the built-in extractor registered under name.
// The empty string selects the regex extractor.
func ExtractorByName(name string) (Extractor, error) {
	switch name {
	case "", "regex":
		return RegexExtractor{}, nil
	case "tokenizer":
		return TokenizerExtractor{}, nil
	}
	return nil, fmt.Errorf("pagefetch: unknown extractor %q", name)
}
