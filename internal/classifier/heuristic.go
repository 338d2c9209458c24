package classifier

import (
	"fmt"
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"

	"triagem/internal/domain"
	"triagem/internal/textnorm"
)

const (
	heuristicBaseScore    = 0.01
	heuristicKeywordBonus = 0.2
)

type labelKeywords struct {
	label    string
	keywords []string
}

//nolint:gochecknoglobals // Immutable keyword table.
var defaultKeywords = []labelKeywords{
	{"Reclamação", []string{"erro", "não funciona", "demora", "reclama"}},
	{"Suporte técnico", []string{"bug", "instalar", "acesso", "senha", "configurar", "técnico"}},
	{"Dúvida", []string{"como", "onde", "posso", "duvida", "dúvida"}},
	{"Solicitação de serviço", []string{"pedido", "solicito", "provisionar", "ativar", "criar"}},
	{"Feedback", []string{"sugestão", "gostei", "melhorar", "ideia"}},
}

//nolint:gochecknoglobals // Read-only after construction.
var defaultMatcher = mustNewKeywordMatcher(defaultKeywords)

// keywordMatcher holds one automaton per label so that each text is scanned
// once per label regardless of the keyword count.
type keywordMatcher struct {
	machines map[string]*goahocorasick.Machine
}

func newKeywordMatcher(table []labelKeywords) (*keywordMatcher, error) {
	machines := make(map[string]*goahocorasick.Machine, len(table))

	for _, entry := range table {
		keywords := lo.Uniq(lo.Map(entry.keywords, func(kw string, _ int) string {
			return strings.ToLower(textnorm.Canonical(kw))
		}))

		patterns := lo.FilterMap(keywords, func(kw string, _ int) ([]rune, bool) {
			return []rune(kw), kw != ""
		})
		if len(patterns) == 0 {
			continue
		}

		m := new(goahocorasick.Machine)
		if err := m.Build(patterns); err != nil {
			return nil, fmt.Errorf("build automaton (label = %s): %w", entry.label, err)
		}

		machines[textnorm.Canonical(entry.label)] = m
	}

	return &keywordMatcher{machines: machines}, nil
}

func mustNewKeywordMatcher(table []labelKeywords) *keywordMatcher {
	m, err := newKeywordMatcher(table)
	if err != nil {
		panic(err)
	}
	return m
}

// distinctHits counts the distinct keywords of label present in content.
func (k *keywordMatcher) distinctHits(label string, content []rune) int {
	machine, ok := k.machines[label]
	if !ok || len(content) == 0 {
		return 0
	}

	seen := make(map[string]struct{})
	for _, term := range machine.MultiPatternSearch(content, false) {
		seen[string(term.Word)] = struct{}{}
	}

	return len(seen)
}

// Heuristic scores labels by keyword presence: 0.01 for every requested
// label plus 0.2 per distinct keyword of that label found in text. Ties go to
// the first requested label.
func Heuristic(text string, labels []string) Result {
	return defaultMatcher.classify(text, labels)
}

func (k *keywordMatcher) classify(text string, labels []string) Result {
	if len(labels) == 0 {
		return emptyResult()
	}

	content := []rune(strings.ToLower(textnorm.Canonical(text)))
	scores := make(map[string]float64, len(labels))

	var best string
	for i, label := range labels {
		if _, ok := scores[label]; ok {
			continue
		}

		score := heuristicBaseScore
		for range k.distinctHits(textnorm.Canonical(label), content) {
			score += heuristicKeywordBonus
		}
		scores[label] = score

		if i == 0 || score > scores[best] {
			best = label
		}
	}

	return Result{
		Label:  best,
		Scores: scores,
		Source: domain.SourceFallback,
	}
}
