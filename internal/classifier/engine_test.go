package classifier

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"triagem/internal/backend"
	"triagem/internal/domain"
)

type stubZeroShot struct {
	ranking Ranking
	err     error

	calls     atomic.Int32
	lastText  string
	lastTmpl  string
	lastLabel []string
}

func (s *stubZeroShot) ZeroShot(
	_ context.Context,
	text string,
	labels []string,
	hypothesisTemplate string,
) (Ranking, error) {
	s.calls.Add(1)
	s.lastText = text
	s.lastTmpl = hypothesisTemplate
	s.lastLabel = labels

	return s.ranking, s.err
}

func readyLoader(zs ZeroShot) backend.Loader[ZeroShot] {
	return func(context.Context) (ZeroShot, error) {
		return zs, nil
	}
}

func TestEngineEmptyInputs(t *testing.T) {
	zs := &stubZeroShot{}
	engine := NewEngine(readyLoader(zs), Options{}, slog.Default())

	cases := []struct {
		name   string
		text   string
		labels []string
	}{
		{"empty text", "", nil},
		{"blank text", "  \t", []string{"A"}},
		{"explicit empty labels", "o sistema não funciona", []string{}},
		{"blank labels only", "o sistema não funciona", []string{" ", ""}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := engine.Classify(context.Background(), c.text, c.labels)
			if got.Label != "" || got.Scores == nil || len(got.Scores) != 0 {
				t.Fatalf("unexpected result: %+v", got)
			}
		})
	}

	if zs.calls.Load() != 0 {
		t.Fatalf("expected no backend call for empty inputs")
	}

	if engine.State() != backend.Uninitialized {
		t.Fatalf("expected backend to stay uninitialized, got %s", engine.State())
	}
}

func TestEngineUsesZeroShot(t *testing.T) {
	zs := &stubZeroShot{ranking: Ranking{
		{Label: "Dúvida", Score: 0.7},
		{Label: "Feedback", Score: 0.5},
	}}
	engine := NewEngine(readyLoader(zs), Options{}, slog.Default())

	got := engine.Classify(context.Background(), "  como exporto o relatório?  ", []string{" Feedback ", "Dúvida", ""})

	if got.Label != "Dúvida" || got.Source != domain.SourceModel {
		t.Fatalf("unexpected result: %+v", got)
	}

	if got.Scores["Dúvida"] != 0.7 || got.Scores["Feedback"] != 0.5 {
		t.Fatalf("expected scores to be forwarded verbatim, got %v", got.Scores)
	}

	if zs.lastText != "como exporto o relatório?" {
		t.Fatalf("expected trimmed text, got %q", zs.lastText)
	}

	if zs.lastTmpl != HypothesisTemplate {
		t.Fatalf("unexpected hypothesis template: %q", zs.lastTmpl)
	}

	if len(zs.lastLabel) != 2 || zs.lastLabel[0] != "Feedback" || zs.lastLabel[1] != "Dúvida" {
		t.Fatalf("unexpected filtered labels: %v", zs.lastLabel)
	}
}

func TestEngineDefaultsLabels(t *testing.T) {
	ranking := make(Ranking, 0, len(DefaultLabels()))
	for i, label := range DefaultLabels() {
		ranking = append(ranking, LabelScore{Label: label, Score: 0.9 - float64(i)*0.1})
	}

	zs := &stubZeroShot{ranking: ranking}
	engine := NewEngine(readyLoader(zs), Options{}, slog.Default())

	got := engine.Classify(context.Background(), "gostei muito do atendimento", nil)

	if len(zs.lastLabel) != len(DefaultLabels()) {
		t.Fatalf("expected default labels, got %v", zs.lastLabel)
	}

	if got.Label != "Feedback" || len(got.Scores) != len(DefaultLabels()) {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestEngineFallbackIsPermanent(t *testing.T) {
	var loads atomic.Int32
	engine := NewEngine(func(context.Context) (ZeroShot, error) {
		loads.Add(1)
		return nil, errors.New("model is missing")
	}, Options{}, slog.Default())

	text := "o sistema não funciona e dá erro"
	labels := []string{"Reclamação", "Dúvida"}

	for range 3 {
		got := engine.Classify(context.Background(), text, labels)
		if got.Label != "Reclamação" || got.Source != domain.SourceFallback {
			t.Fatalf("unexpected result: %+v", got)
		}
	}

	if loads.Load() != 1 {
		t.Fatalf("expected exactly one load attempt, got %d", loads.Load())
	}

	if engine.State() != backend.Unavailable {
		t.Fatalf("expected unavailable backend, got %s", engine.State())
	}
}

func TestEngineInvocationErrorFallsBack(t *testing.T) {
	zs := &stubZeroShot{err: errors.New("503")}
	engine := NewEngine(readyLoader(zs), Options{}, slog.Default())

	got := engine.Classify(context.Background(), "não consigo instalar", []string{"Suporte técnico", "Feedback"})

	if got.Label != "Suporte técnico" || got.Source != domain.SourceFallback {
		t.Fatalf("unexpected result: %+v", got)
	}

	if engine.State() != backend.Ready {
		t.Fatalf("expected backend to stay ready, got %s", engine.State())
	}
}

func TestEngineMalformedRankingFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		ranking Ranking
	}{
		{"empty", nil},
		{"missing label", Ranking{{Label: "Feedback", Score: 1}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			engine := NewEngine(readyLoader(&stubZeroShot{ranking: test.ranking}), Options{}, slog.Default())

			got := engine.Classify(context.Background(), "tenho uma dúvida", []string{"Feedback", "Dúvida"})
			if got.Source != domain.SourceFallback || got.Label != "Dúvida" {
				t.Fatalf("unexpected result: %+v", got)
			}
		})
	}
}

func TestNewLoaderRunsSmokeClassification(t *testing.T) {
	zs := &stubZeroShot{ranking: Ranking{{Label: "Feedback", Score: 1}}}

	loader := NewLoader(func(context.Context) (ZeroShot, error) {
		return zs, nil
	})

	if _, err := loader(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if zs.lastText != smokeText || len(zs.lastLabel) != len(DefaultLabels()) {
		t.Fatalf("unexpected smoke call: %q %v", zs.lastText, zs.lastLabel)
	}
}

func TestResultRanked(t *testing.T) {
	r := Result{Scores: map[string]float64{"b": 0.2, "a": 0.2, "c": 0.9}}

	ranked := r.Ranked()
	if len(ranked) != 3 || ranked[0].Label != "c" || ranked[1].Label != "a" || ranked[2].Label != "b" {
		t.Fatalf("unexpected ranking: %v", ranked)
	}
}
