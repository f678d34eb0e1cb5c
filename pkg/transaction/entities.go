package transaction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ghanavoice/ledger/pkg/vocabulary"
)

// numberWords maps English and Twi/Akan number words to their numeric
// value. Twi/Akan is the dominant local language in Ghanaian market-stall
// settings, so its small cardinal set is included alongside English.
var numberWords = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"thirty": 30, "forty": 40, "fifty": 50, "sixty": 60, "seventy": 70,
	"eighty": 80, "ninety": 90, "hundred": 100,

	// Twi/Akan cardinals.
	"baako": 1, "mmienu": 2, "mmiɛnsa": 3, "mmiensa": 3, "ɛnan": 4, "enan": 4,
	"enum": 5, "ɛnum": 5, "nsia": 6, "nson": 7, "nwɔtwe": 8, "nwotwe": 8,
	"nkron": 9, "du": 10,
}

var decimalAmountRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(cedis?|gh₵|ghs|pesewas?)?`)

// AmountResult is an extracted monetary amount with its source span.
type AmountResult struct {
	Amount     float64
	Currency   string
	Confidence float64
	Matched    bool
}

// ExtractAmount recognizes a decimal numeral or a number-word phrase,
// optionally followed by a currency token, converting pesewas to cedis at
// the fixed 100:1 rate.
func ExtractAmount(utterance string) AmountResult {
	lower := strings.ToLower(utterance)

	if m := decimalAmountRe.FindStringSubmatch(lower); m != nil && m[1] != "" {
		val, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			currency := "GHS"
			conf := 0.75
			if strings.Contains(m[2], "pesewa") {
				val = val / 100
				conf = 0.9
			} else if m[2] != "" {
				conf = 0.9
			}
			return AmountResult{Amount: val, Currency: currency, Confidence: conf, Matched: true}
		}
	}

	if val, ok := extractNumberWordAmount(lower); ok {
		conf := 0.6
		if strings.Contains(lower, "cedi") {
			conf = 0.8
		}
		return AmountResult{Amount: val, Currency: "GHS", Confidence: conf, Matched: true}
	}

	return AmountResult{}
}

// extractNumberWordAmount walks the tokens of utterance looking for a
// contiguous run of number words, combining "twenty" + "five" style
// compounds and a trailing "hundred" multiplier.
func extractNumberWordAmount(lower string) (float64, bool) {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!'
	})

	var total float64
	var found bool
	var pending float64

	for _, tok := range tokens {
		v, ok := numberWords[tok]
		if !ok {
			if found {
				break
			}
			continue
		}
		found = true
		if v == 100 {
			if pending == 0 {
				pending = 1
			}
			pending *= v
			continue
		}
		pending += v
	}
	total = pending
	return total, found
}

var quantityUnitRe = regexp.MustCompile(`(?i)(\d+|` + numberWordAlternation() + `)\s*(pieces?|bowls?|buckets?|tins?|kg|kilograms?|g|grams?)?`)

func numberWordAlternation() string {
	words := make([]string, 0, len(numberWords))
	for w := range numberWords {
		words = append(words, w)
	}
	return strings.Join(words, "|")
}

// QuantityResult is an extracted count and unit.
type QuantityResult struct {
	Quantity float64
	Unit     string
	Matched  bool
}

// ExtractQuantity recognizes "(digit|word) (piece|bowl|bucket|tin|kg|g)"
// patterns, or a bare numeral preceding a product name, defaulting the unit
// to "piece" when none is stated.
func ExtractQuantity(utterance string) QuantityResult {
	lower := strings.ToLower(utterance)
	m := quantityUnitRe.FindStringSubmatch(lower)
	if m == nil || m[1] == "" {
		return QuantityResult{}
	}

	var qty float64
	if v, err := strconv.ParseFloat(m[1], 64); err == nil {
		qty = v
	} else if v, ok := numberWords[m[1]]; ok {
		qty = v
	} else {
		return QuantityResult{}
	}

	unit := normalizeUnit(m[2])
	return QuantityResult{Quantity: qty, Unit: unit, Matched: true}
}

func normalizeUnit(raw string) string {
	raw = strings.TrimSuffix(raw, "s")
	switch raw {
	case "piece", "":
		return "piece"
	case "bowl":
		return "bowl"
	case "bucket":
		return "bucket"
	case "tin":
		return "tin"
	case "kg", "kilogram":
		return "kg"
	case "g", "gram":
		return "g"
	default:
		return "piece"
	}
}

// ProductResult is an extracted, vocabulary-normalized product name.
type ProductResult struct {
	Name       string
	Confidence float64
	Matched    bool
}

// ExtractProduct drops stopwords and number words from the utterance, then
// normalizes every contiguous run of the remaining tokens against the
// vocabulary, longest runs first (leftmost first among equal lengths), and
// returns the first run that matches by any method (exact, phonetic or
// fuzzy).
func ExtractProduct(utterance string, vocab *vocabulary.Vocabulary) ProductResult {
	if vocab == nil {
		return ProductResult{}
	}
	tokens := strings.Fields(strings.ToLower(utterance))
	tokens = stripStopwords(tokens)
	if len(tokens) == 0 {
		return ProductResult{}
	}

	// Try progressively shorter token runs so multi-word product names (e.g.
	// "dried fish") are preferred over a partial single-word match.
	for length := len(tokens); length >= 1; length-- {
		for start := 0; start+length <= len(tokens); start++ {
			phrase := strings.Join(tokens[start:start+length], " ")
			r := vocab.Normalize(phrase)
			if r.Matched {
				return ProductResult{Name: r.Canonical, Confidence: r.Confidence, Matched: true}
			}
		}
	}
	return ProductResult{}
}

var stopwords = map[string]struct{}{
	"the": {}, "is": {}, "this": {}, "how": {}, "much": {}, "for": {},
	"a": {}, "an": {}, "of": {}, "do": {}, "you": {}, "have": {}, "i": {},
	"want": {}, "to": {}, "buy": {}, "please": {}, "and": {},
}

func stripStopwords(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, isNumber := numberWords[t]; isNumber {
			continue
		}
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}
