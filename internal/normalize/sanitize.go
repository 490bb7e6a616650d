// Package normalize turns free-form outbound text (often markdown from the
// command server) into plain lines that are safe to send over IRC.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	fencedCode   = regexp.MustCompile("(?s)```(.*?)```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	emphasis     = regexp.MustCompile(`\*\*(\S.*?\S)\*\*|__(\S.*?\S)__|\*(\S.*?\S)\*|_(\S.*?\S)_`)
	markdownLink = regexp.MustCompile(`!?\[[^\]]*\]\([^)]*\)`)
	blockquote   = regexp.MustCompile(`(?m)^>\s?`)
	bullet       = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	bulletGlyph  = regexp.MustCompile("[\u2022\u25CF\u25A0]+")
	zeroWidth    = regexp.MustCompile("[\u200B-\u200D\uFEFF]")
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	newlinePad   = regexp.MustCompile(` *\n *`)
)

// Sanitize strips markdown decoration, control characters and redundant
// whitespace. Newlines are kept so callers can split on them.
//
// Passes are repeated until the text stops changing. Every pass either
// shortens the text or only canonicalises bullets, so this terminates, and
// Sanitize(Sanitize(x)) == Sanitize(x) holds for any x.
func Sanitize(text string) string {
	for {
		next := sanitizeOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func sanitizeOnce(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = fencedCode.ReplaceAllString(text, "$1")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = emphasis.ReplaceAllString(text, "$1$2$3$4")
	text = markdownLink.ReplaceAllString(text, "")
	text = blockquote.ReplaceAllString(text, "")
	text = bullet.ReplaceAllString(text, "- ")
	text = bulletGlyph.ReplaceAllString(text, "-")
	text = zeroWidth.ReplaceAllString(text, "")
	text = stripControl(text)
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlinePad.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// stripControl drops every rune in Unicode category C (control, format,
// private use, surrogate) except newline. IRC formatting codes go with them.
func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == unicode.ReplacementChar || unicode.Is(unicode.C, r) {
			return -1
		}
		return r
	}, text)
}
