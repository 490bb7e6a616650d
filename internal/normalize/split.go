package normalize

import "strings"

// DefaultMaxLength is the physical line budget used when none is configured
const DefaultMaxLength = 400

// Split sanitizes text and packs it into lines of at most maxLen bytes.
// Every newline in the sanitized text starts a new line and empty lines are
// dropped. Words are never broken: a single word longer than maxLen is
// emitted on a line of its own.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	var lines []string
	for _, logical := range strings.Split(Sanitize(text), "\n") {
		var current strings.Builder
		for _, word := range strings.Fields(logical) {
			if current.Len() == 0 {
				current.WriteString(word)
				continue
			}
			if current.Len()+1+len(word) > maxLen {
				lines = append(lines, current.String())
				current.Reset()
				current.WriteString(word)
				continue
			}
			current.WriteByte(' ')
			current.WriteString(word)
		}
		if current.Len() > 0 {
			lines = append(lines, current.String())
		}
	}
	return lines
}
