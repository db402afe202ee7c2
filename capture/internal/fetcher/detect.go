package fetcher

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var shellMarkers = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte(`<noscript>you need to enable javascript`),
	[]byte(`<noscript>enable javascript`),
}

// IsSufficient reports whether body carries enough visible text to stand
// without JavaScript: at least 200 non-space text bytes making up at least
// 10% of the document, and none of the usual SPA mount points.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, m) {
			return false
		}
	}
	text, markup := textMarkup(body)
	if text < 200 {
		return false
	}
	return float64(text)/float64(text+markup) >= 0.10
}

// textMarkup counts visible non-space text bytes against everything else.
// Script and style bodies count as markup.
func textMarkup(body []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	hidden := 0
	for {
		tt := z.Next()
		raw := len(z.Raw())
		switch tt {
		case html.ErrorToken:
			return text, markup
		case html.TextToken:
			if hidden > 0 {
				markup += raw
				continue
			}
			n := len(strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return -1
				}
				return r
			}, string(z.Text())))
			text += n
			markup += raw - min(raw, n)
		case html.StartTagToken:
			markup += raw
			if a := tagAtom(z); a == atom.Script || a == atom.Style {
				hidden++
			}
		case html.EndTagToken:
			markup += raw
			if a := tagAtom(z); (a == atom.Script || a == atom.Style) && hidden > 0 {
				hidden--
			}
		default:
			markup += raw
		}
	}
}

func tagAtom(z *html.Tokenizer) atom.Atom {
	name, _ := z.TagName()
	return atom.Lookup(name)
}
