package summarizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"triagem/internal/textnorm"
)

const naivePrefix = "(Resumo automático simples) "

var requestVerbRe = regexp.MustCompile(`(?i)^\s*(solicito|gostaria de|quero|preciso)\s+(.*)$`)

// RuleBased rewrites a short request into a third person sentence,
// e.g. "Solicito acesso ao sistema" becomes "Solicita acesso ao sistema.".
func RuleBased(text string) string {
	t := strings.TrimRight(strings.TrimSpace(text), ".")

	if m := requestVerbRe.FindStringSubmatch(t); m != nil {
		t = "Solicita " + m[2]
	}

	if t == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(t)
	t = string(unicode.ToUpper(first)) + t[size:]

	if !strings.HasSuffix(t, ".") {
		t += "."
	}

	return t
}

// Naive keeps the first maxSentences sentences of text as they are.
func Naive(text string, maxSentences int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	maxSentences = max(maxSentences, 1)
	sentences := textnorm.SplitSentences(text)

	summary := strings.TrimSpace(strings.Join(sentences[:min(maxSentences, len(sentences))], " "))
	if len(sentences) > maxSentences {
		summary += " ..."
	}

	return naivePrefix + summary
}
