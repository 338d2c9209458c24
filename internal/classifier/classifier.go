package classifier

import (
	"cmp"
	"context"
	"slices"

	"triagem/internal/domain"
)

const HypothesisTemplate = "This text is about {}."

// DefaultLabels returns the built-in categories in their canonical order.
func DefaultLabels() []string {
	return []string{
		"Feedback",
		"Reclamação",
		"Suporte técnico",
		"Dúvida",
		"Solicitação de serviço",
	}
}

type LabelScore struct {
	Label string
	Score float64
}

// Ranking is a zero-shot answer ordered from the best label to the worst.
type Ranking []LabelScore

// ZeroShot scores text against every label using hypothesisTemplate with
// "{}" replaced by the label.
type ZeroShot interface {
	ZeroShot(ctx context.Context, text string, labels []string, hypothesisTemplate string) (Ranking, error)
}

// Result is a classification. Label is the best scoring key of Scores and is
// empty only when Scores is empty.
type Result struct {
	Label  string
	Scores map[string]float64
	Source domain.Source
}

func emptyResult() Result {
	return Result{Scores: map[string]float64{}}
}

// Ranked returns the scores ordered from best to worst, ties by label.
func (r Result) Ranked() []LabelScore {
	ranked := make([]LabelScore, 0, len(r.Scores))
	for label, score := range r.Scores {
		ranked = append(ranked, LabelScore{Label: label, Score: score})
	}

	slices.SortFunc(ranked, func(a, b LabelScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})

	return ranked
}
