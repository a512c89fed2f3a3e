package matcher

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Antecipação", "antecipacao"},
		{"PIX Recebido - Venda #123", "pix recebido venda 123"},
		{"  José   da  Silva  ", "jose da silva"},
		{"", ""},
		{"R$1.000,00", "r 1 000 00"},
	}

	for _, tt := range tests {
		if got := normalizeText(tt.input); got != tt.want {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSimilaritySymmetry(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	pairs := [][2]string{
		{"PIX recebido venda #123", "venda 123 cliente Maria"},
		{"pedido 42", "pagamento pedido n 42"},
		{"abc", "xyz"},
		{"", "venda 1"},
	}

	for _, pair := range pairs {
		ab := ts.Score(pair[0], pair[1])
		ba := ts.Score(pair[1], pair[0])
		if ab != ba {
			t.Errorf("Score(%q, %q) = %v but reversed = %v", pair[0], pair[1], ab, ba)
		}
	}
}

func TestSimilarityIdentity(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	inputs := []string{
		"PIX recebido venda #123",
		"Antecipação de recebíveis",
		"pedido nº 55 parcela 2/4",
	}

	for _, input := range inputs {
		if got := ts.Score(input, input); got != 100 {
			t.Errorf("Score(%q, itself) = %v, want 100", input, got)
		}
	}
}

func TestSimilarityDisjoint(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	// No shared word tokens, no shared numbers.
	if got := ts.Score("aluguel escritorio 900", "venda teclado 123"); got != 0 {
		t.Errorf("Expected 0 for disjoint strings, got %v", got)
	}
}

func TestSimilarityContainment(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	if got := ts.Score("PIX recebido venda #123 cliente Maria", "venda 123"); got != 100 {
		t.Errorf("Expected 100 for containment, got %v", got)
	}
}

func TestSimilarityNumericWeight(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	// Shared number, different words: numeric overlap = 1, word overlap = 0
	// -> 70.
	got := ts.Score("transferencia 4821 loja", "deposito 4821 cliente")
	if got < 69.9 || got > 70.1 {
		t.Errorf("Expected ~70 for number-only overlap, got %v", got)
	}
}

func TestSimilarityLeadingZeros(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	got := ts.Score("venda 042", "pagto 42")
	if got < 69.9 {
		t.Errorf("Expected leading zeros to be ignored, got %v", got)
	}
}

func TestSimilarityWordOnlyCap(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	// Identical word sets in a different order, no numbers on either side:
	// the numeric component of the blend stays 0, so the pair caps at 30.
	got := ts.Score("deposito loja centro", "centro loja deposito")
	if got < 29.9 || got > 30.1 {
		t.Errorf("Expected ~30 for number-free word overlap, got %v", got)
	}
}

func TestSimilarityStopWordsIgnored(t *testing.T) {
	ts := NewTextSimilarity(DefaultScoringConfig())

	// "de" and "recebido" are stop words; remaining words are disjoint and
	// there are no numbers.
	if got := ts.Score("pagamento de aluguel", "pagamento recebido loja"); got != 0 {
		// "pagamento" is also a stop word, so nothing overlaps.
		t.Errorf("Expected 0 after stop-word removal, got %v", got)
	}
}

func TestContainsNormalized(t *testing.T) {
	if !ContainsNormalized("PIX recebido de JOSÉ DA SILVA", "José da Silva") {
		t.Error("Expected normalized containment to match across case and accents")
	}

	if ContainsNormalized("PIX recebido", "") {
		t.Error("Empty needle should never match")
	}

	if ContainsNormalized("venda 123", "Maria") {
		t.Error("Unrelated needle should not match")
	}
}
