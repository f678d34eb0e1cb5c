package transaction

import (
	"testing"

	"github.com/ghanavoice/ledger/pkg/vocabulary"
)

func TestExtractAmountDecimalWithCedis(t *testing.T) {
	r := ExtractAmount("it's fifteen cedis, no wait, 15 cedis")
	if !r.Matched || r.Amount != 15 || r.Currency != "GHS" {
		t.Fatalf("expected 15 GHS, got %+v", r)
	}
}

func TestExtractAmountPesewaConversion(t *testing.T) {
	r := ExtractAmount("that's 50 pesewas")
	if !r.Matched || r.Amount != 0.5 {
		t.Fatalf("expected 0.5 cedis from 50 pesewas, got %+v", r)
	}
}

func TestExtractAmountNumberWordEnglish(t *testing.T) {
	r := ExtractAmount("twenty five cedis")
	if !r.Matched || r.Amount != 25 {
		t.Fatalf("expected 25, got %+v", r)
	}
}

func TestExtractAmountNumberWordTwi(t *testing.T) {
	r := ExtractAmount("mmienu cedis")
	if !r.Matched || r.Amount != 2 {
		t.Fatalf("expected 2 from mmienu, got %+v", r)
	}
}

func TestExtractAmountNoMatch(t *testing.T) {
	r := ExtractAmount("how are you today")
	if r.Matched {
		t.Fatalf("expected no match, got %+v", r)
	}
}

func TestExtractQuantityDigitWithUnit(t *testing.T) {
	r := ExtractQuantity("give me 3 bowls of tomatoes")
	if !r.Matched || r.Quantity != 3 || r.Unit != "bowl" {
		t.Fatalf("expected 3 bowl, got %+v", r)
	}
}

func TestExtractQuantityDefaultUnit(t *testing.T) {
	r := ExtractQuantity("two tomatoes please")
	if !r.Matched || r.Quantity != 2 || r.Unit != "piece" {
		t.Fatalf("expected 2 piece, got %+v", r)
	}
}

func TestExtractQuantityNoMatch(t *testing.T) {
	r := ExtractQuantity("hello there")
	if r.Matched {
		t.Fatalf("expected no match, got %+v", r)
	}
}

func TestExtractProductMatchesVocabulary(t *testing.T) {
	v := vocabulary.New(0.8)
	v.Add(vocabulary.Product{Name: "Tomatoes", Aliases: []string{"tomato"}})
	v.Add(vocabulary.Product{Name: "Plantain"})

	r := ExtractProduct("how much for the tomatoes", v)
	if !r.Matched || r.Name != "Tomatoes" {
		t.Fatalf("expected Tomatoes, got %+v", r)
	}
}

func TestExtractProductNoVocabulary(t *testing.T) {
	r := ExtractProduct("how much for the tomatoes", nil)
	if r.Matched {
		t.Fatalf("expected no match with nil vocabulary")
	}
}

func TestExtractProductNoMatch(t *testing.T) {
	v := vocabulary.New(0.8)
	v.Add(vocabulary.Product{Name: "Tomatoes"})

	r := ExtractProduct("how much for the helicopter", v)
	if r.Matched {
		t.Fatalf("expected no match, got %+v", r)
	}
}
