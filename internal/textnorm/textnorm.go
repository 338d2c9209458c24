package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const truncationSuffix = " ..."

var (
	headerMarkerRe  = regexp.MustCompile(`(?i)resumo\s*:\s*`)
	leadingMarkerRe = regexp.MustCompile(`(?i)^\s*resumo\s*[-—:]\s*`)
)

// Canonical returns text in Unicode NFC so that accented PT-BR input compares
// equal regardless of how the client composed it.
func Canonical(text string) string {
	return norm.NFC.String(text)
}

// CollapseSpaces replaces every whitespace run with a single space and trims.
func CollapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// IsWordRune reports whether r belongs to a word: letters, numbers and underscore.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// CountWords counts runs of word runes.
func CountWords(text string) int {
	count := 0
	inWord := false

	for _, r := range text {
		if IsWordRune(r) {
			if !inWord {
				count++
			}
			inWord = true

			continue
		}
		inWord = false
	}

	return count
}

// SplitSentences splits text after '.', '!' or '?' when followed by whitespace.
// The punctuation stays with the sentence; the whitespace run is dropped.
func SplitSentences(text string) []string {
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if r != '.' && r != '!' && r != '?' {
			continue
		}

		end := i
		j := i
		for j < len(text) {
			next, nextSize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(next) {
				break
			}
			j += nextSize
		}

		if j == end {
			continue
		}

		sentences = append(sentences, text[start:end])
		start = j
		i = j
	}

	return append(sentences, text[start:])
}

// DedupKey lowercases s and drops every non-word rune.
func DedupKey(s string) string {
	return strings.Map(func(r rune) rune {
		if IsWordRune(r) {
			return r
		}
		return -1
	}, strings.ToLower(s))
}

// NormalizeSummary cleans raw generator output: drops "Resumo:" headers,
// removes duplicate or too short sentences and keeps at most maxSentences.
// A trailing " ..." marks that the raw output had more sentences than the cap.
func NormalizeSummary(raw string, maxSentences int) string {
	maxSentences = max(maxSentences, 1)

	text := CollapseSpaces(Canonical(raw))
	if text == "" {
		return ""
	}

	text = stripHeaderMarkers(text)
	sentences := SplitSentences(text)

	seen := make(map[string]struct{}, len(sentences))
	out := make([]string, 0, maxSentences)

	for _, sentence := range sentences {
		sentence = strings.Trim(sentence, ` "«»“”`)
		if sentence == "" {
			continue
		}

		sentence = strings.TrimSpace(leadingMarkerRe.ReplaceAllString(sentence, ""))

		key := DedupKey(sentence)
		if utf8.RuneCountInString(sentence) < 3 {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, sentence)

		if len(out) >= maxSentences {
			break
		}
	}

	if len(out) == 0 {
		return ""
	}

	summary := strings.Join(out, " ")
	if len(sentences) > maxSentences {
		summary += truncationSuffix
	}

	return summary
}

// stripHeaderMarkers removes "resumo:" markers that start a word. A marker
// glued to a preceding letter, digit or underscore (any script) is kept.
func stripHeaderMarkers(text string) string {
	var b strings.Builder
	last := 0

	for _, loc := range headerMarkerRe.FindAllStringIndex(text, -1) {
		if prev, _ := utf8.DecodeLastRuneInString(text[:loc[0]]); loc[0] > 0 && IsWordRune(prev) {
			continue
		}

		b.WriteString(text[last:loc[0]])
		last = loc[1]
	}

	b.WriteString(text[last:])

	return b.String()
}
