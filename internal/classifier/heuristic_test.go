package classifier

import (
	"math"
	"testing"

	"triagem/internal/domain"
)

const scoreTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < scoreTolerance
}

func TestHeuristicScenario(t *testing.T) {
	got := Heuristic("o sistema não funciona e dá erro", []string{"Reclamação", "Dúvida"})

	if got.Label != "Reclamação" {
		t.Fatalf("unexpected label: %q", got.Label)
	}

	if !almostEqual(got.Scores["Reclamação"], 0.41) {
		t.Fatalf("unexpected Reclamação score: %v", got.Scores["Reclamação"])
	}

	if !almostEqual(got.Scores["Dúvida"], 0.01) {
		t.Fatalf("unexpected Dúvida score: %v", got.Scores["Dúvida"])
	}

	if got.Source != domain.SourceFallback {
		t.Fatalf("unexpected source: %q", got.Source)
	}
}

func TestHeuristicCountsDistinctKeywordsOnce(t *testing.T) {
	got := Heuristic("erro erro erro", []string{"Reclamação"})

	if !almostEqual(got.Scores["Reclamação"], 0.21) {
		t.Fatalf("expected single hit for repeated keyword, got %v", got.Scores["Reclamação"])
	}
}

func TestHeuristicIsCaseInsensitive(t *testing.T) {
	got := Heuristic("COMO configurar a SENHA?", DefaultLabels())

	if !almostEqual(got.Scores["Suporte técnico"], 0.41) {
		t.Fatalf("unexpected Suporte técnico score: %v", got.Scores["Suporte técnico"])
	}

	if !almostEqual(got.Scores["Dúvida"], 0.21) {
		t.Fatalf("unexpected Dúvida score: %v", got.Scores["Dúvida"])
	}

	if got.Label != "Suporte técnico" {
		t.Fatalf("unexpected label: %q", got.Label)
	}
}

func TestHeuristicDecomposedInput(t *testing.T) {
	got := Heuristic("o app na\u0303o funciona", []string{"Reclamação"})

	if !almostEqual(got.Scores["Reclamação"], 0.21) {
		t.Fatalf("expected decomposed accent to match keyword, got %v", got.Scores["Reclamação"])
	}
}

func TestHeuristicUnknownLabelsKeepBaseScore(t *testing.T) {
	got := Heuristic("erro no financeiro", []string{"Financeiro", "Outros"})

	for _, label := range []string{"Financeiro", "Outros"} {
		if !almostEqual(got.Scores[label], 0.01) {
			t.Fatalf("unexpected score for %q: %v", label, got.Scores[label])
		}
	}

	if got.Label != "Financeiro" {
		t.Fatalf("expected tie to go to first label, got %q", got.Label)
	}
}

func TestHeuristicEmptyLabels(t *testing.T) {
	got := Heuristic("erro", nil)

	if got.Label != "" || len(got.Scores) != 0 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestHeuristicIsMonotonic(t *testing.T) {
	texts := []string{
		"pedido",
		"pedido para ativar",
		"pedido para ativar e criar",
		"pedido para ativar e criar, solicito provisionar",
	}

	prev := 0.0
	for _, text := range texts {
		score := Heuristic(text, DefaultLabels()).Scores["Solicitação de serviço"]
		if score < prev {
			t.Fatalf("score decreased for %q: %v < %v", text, score, prev)
		}
		prev = score
	}

	if !almostEqual(prev, 1.01) {
		t.Fatalf("unexpected final score: %v", prev)
	}
}

func TestHeuristicEveryLabelHasScore(t *testing.T) {
	labels := []string{"Dúvida", "Feedback", "Dúvida"}
	got := Heuristic("tenho uma ideia", labels)

	if len(got.Scores) != 2 {
		t.Fatalf("unexpected scores: %v", got.Scores)
	}

	if got.Label != "Feedback" {
		t.Fatalf("unexpected label: %q", got.Label)
	}
}
