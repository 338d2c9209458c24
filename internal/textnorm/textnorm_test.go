package textnorm

import (
	"slices"
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Sem pontuação final", []string{"Sem pontuação final"}},
		{"mixed punctuation", "Um. Dois! Três? Quatro", []string{"Um.", "Dois!", "Três?", "Quatro"}},
		{"no space after dot", "versão 1.2 instalada. Ok", []string{"versão 1.2 instalada.", "Ok"}},
		{"newline boundary", "Linha um.\n\nLinha dois.", []string{"Linha um.", "Linha dois."}},
		{"ellipsis", "Espere... Agora", []string{"Espere...", "Agora"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"Solicito acesso ao sistema", 4},
		{"não-funciona, já!", 3},
		{"erro_500 em 2024", 3},
	}

	for _, tt := range tests {
		if got := CountWords(tt.in); got != tt.want {
			t.Fatalf("CountWords(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSummary(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want string
	}{
		{"empty", "", 3, ""},
		{"blank", " \n\t ", 3, ""},
		{"header removed", "Resumo: Cliente relata falha no login.", 3, "Cliente relata falha no login."},
		{"header lowercase", "resumo:   cliente pede reembolso.", 3, "cliente pede reembolso."},
		{
			"quotes trimmed",
			`"Cliente não consegue acessar o portal."`,
			3,
			"Cliente não consegue acessar o portal.",
		},
		{
			"leading dash marker",
			"Resumo - Usuário solicita nova senha.",
			3,
			"Usuário solicita nova senha.",
		},
		{
			"duplicates dropped",
			"Cliente relata erro. cliente relata erro! Pede retorno.",
			3,
			"Cliente relata erro. Pede retorno.",
		},
		{"short sentences dropped", "A. Cliente aguarda retorno.", 3, "Cliente aguarda retorno."},
		{
			"truncated",
			"Um fato. Dois fatos. Três fatos. Quatro fatos.",
			2,
			"Um fato. Dois fatos. ...",
		},
		{
			"truncation counts raw sentences",
			"A. B. Cliente aguarda retorno.",
			2,
			"Cliente aguarda retorno. ...",
		},
		{"only noise", "Resumo: . ! ?", 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSummary(tt.raw, tt.max); got != tt.want {
				t.Fatalf("NormalizeSummary(%q, %d) = %q, want %q", tt.raw, tt.max, got, tt.want)
			}
		})
	}
}

func TestNormalizeSummaryNeverStartsWithHeader(t *testing.T) {
	inputs := []string{
		"Resumo: Resumo: texto repetido.",
		"RESUMO:resumo: texto.",
		"resumo resumo: : texto final.",
		"Resumo — resumo: outro texto.",
		"“Resumo: citação.” Fim do texto.",
	}

	for _, raw := range inputs {
		got := NormalizeSummary(raw, 3)
		if strings.HasPrefix(strings.ToLower(got), "resumo:") {
			t.Fatalf("NormalizeSummary(%q) = %q starts with header", raw, got)
		}
	}
}

func TestStripHeaderMarkers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Resumo: texto.", "texto."},
		{"RESUMO:resumo: texto.", "texto."},
		{"fim. resumo : outro.", "fim. outro."},
		{"éresumo: x", "éresumo: x"},
		{"Préresumo: x", "Préresumo: x"},
		{"xresumo: y", "xresumo: y"},
		{"_resumo: y", "_resumo: y"},
		{"«resumo: y", "«y"},
	}

	for _, tt := range tests {
		if got := stripHeaderMarkers(tt.in); got != tt.want {
			t.Errorf("stripHeaderMarkers(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSummaryNoDuplicateSentences(t *testing.T) {
	raw := "Falha no login. FALHA no login! falha, no login? Outra coisa. Falha no login."

	got := NormalizeSummary(raw, 5)

	seen := make(map[string]struct{})
	for _, sentence := range SplitSentences(strings.TrimSuffix(got, truncationSuffix)) {
		key := DedupKey(sentence)
		if _, ok := seen[key]; ok {
			t.Fatalf("duplicate sentence %q in %q", sentence, got)
		}
		seen[key] = struct{}{}
	}
}

func TestCanonicalComposesAccents(t *testing.T) {
	decomposed := "na\u0303o funciona"
	if got := Canonical(decomposed); got != "n\u00e3o funciona" {
		t.Fatalf("Canonical(%q) = %q", decomposed, got)
	}
}
