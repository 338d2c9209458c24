package markdown

import "strings"

// Taken from https://core.telegram.org/bots/api#markdownv2-style.
const (
	mdV2SpecialChars     = `_*[]()~>#+-=|{}.!` + "`" + `\`
	mdV2CodeSpecialChars = "`" + `\`
)

//nolint:gochecknoglobals // Lookup tables meant to be immutable.
var (
	mdV2Lookup     = lookup(mdV2SpecialChars)
	mdV2CodeLookup = lookup(mdV2CodeSpecialChars)
)

// EscapeV2 escapes text for MarkdownV2 outside of entities.
func EscapeV2(input string) string {
	return escape(input, &mdV2Lookup)
}

// EscapeCode escapes text placed inside pre and code entities.
func EscapeCode(input string) string {
	return escape(input, &mdV2CodeLookup)
}

// PreBlock wraps text in a MarkdownV2 pre entity.
func PreBlock(text string) string {
	return "```\n" + EscapeCode(text) + "\n```"
}

func escape(input string, table *[256]bool) string {
	charsToEscape := 0

	for i := range len(input) {
		if table[input[i]] {
			charsToEscape++
		}
	}
	if charsToEscape == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + charsToEscape)

	for i := range len(input) {
		c := input[i]
		if table[c] {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func lookup(chars string) [256]bool {
	var m [256]bool
	for i := range len(chars) {
		m[chars[i]] = true
	}
	return m
}
