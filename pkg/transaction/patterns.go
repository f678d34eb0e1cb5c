package transaction

import "regexp"

// PatternGroup is one of the conversational intents the state machine
// recognizes in an utterance.
type PatternGroup string

const (
	GroupNone        PatternGroup = ""
	GroupInquiry     PatternGroup = "INQUIRY"
	GroupPriceQuote  PatternGroup = "PRICE_QUOTE"
	GroupNegotiation PatternGroup = "NEGOTIATION"
	GroupAgreement   PatternGroup = "AGREEMENT"
	GroupPayment     PatternGroup = "PAYMENT"
	GroupCancellation PatternGroup = "CANCELLATION"
)

// priority orders groups for tie-breaking when an utterance matches more
// than one group at equal confidence: higher value wins.
var priority = map[PatternGroup]int{
	GroupCancellation: 6,
	GroupPayment:      5,
	GroupPriceQuote:   4,
	GroupAgreement:    3,
	GroupNegotiation:  2,
	GroupInquiry:      1,
}

// pattern pairs a regexp with the intrinsic confidence of a match.
type pattern struct {
	re         *regexp.Regexp
	confidence float64
}

var groupPatterns = map[PatternGroup][]pattern{
	GroupInquiry: {
		{regexp.MustCompile(`(?i)how much`), 0.95},
		{regexp.MustCompile(`(?i)what('?s| is) the price`), 0.95},
		{regexp.MustCompile(`(?i)sɛn na ɛyɛ`), 0.85},
		{regexp.MustCompile(`(?i)do you have`), 0.6},
		{regexp.MustCompile(`(?i)\?$`), 0.4},
	},
	GroupPriceQuote: {
		{regexp.MustCompile(`(?i)\d+(\.\d+)?\s*cedis?\b`), 0.95},
		{regexp.MustCompile(`(?i)\bgh₵\s*\d+`), 0.95},
		{regexp.MustCompile(`(?i)\d+\s*pesewas?\b`), 0.85},
		{numberWordPriceQuoteRe(), 0.9},
		{regexp.MustCompile(`(?i)^(it'?s|that'?s|costs?)\s`), 0.5},
	},
	GroupNegotiation: {
		{regexp.MustCompile(`(?i)too (much|expensive)`), 0.85},
		{regexp.MustCompile(`(?i)can you (do|make it|reduce)`), 0.8},
		{regexp.MustCompile(`(?i)\blast price\b`), 0.8},
		{regexp.MustCompile(`(?i)\breduce\b|\bdiscount\b`), 0.7},
	},
	GroupAgreement: {
		{regexp.MustCompile(`(?i)\bokay\b|\bok\b|\balright\b`), 0.6},
		{regexp.MustCompile(`(?i)\bagreed\b|\bdeal\b|\bfine\b`), 0.75},
	},
	GroupPayment: {
		{regexp.MustCompile(`(?i)here('?s| is) (your |the )?money`), 0.95},
		{regexp.MustCompile(`(?i)\bmomo\b|\bmobile money\b`), 0.85},
		{regexp.MustCompile(`(?i)\bchange\b`), 0.6},
		{regexp.MustCompile(`(?i)\bthank you\b`), 0.5},
	},
	GroupCancellation: {
		{regexp.MustCompile(`(?i)\bnever ?mind\b`), 0.9},
		{regexp.MustCompile(`(?i)\bforget it\b`), 0.9},
		{regexp.MustCompile(`(?i)\bnot (buying|today)\b`), 0.85},
		{regexp.MustCompile(`(?i)\bno thanks\b`), 0.8},
	},
}

// numberWordPriceQuoteRe matches a number-word amount followed by a currency
// token (e.g. "Fifteen cedis"), reusing the numberWords lexicon so the
// classifier recognizes exactly the quotes ExtractAmount can parse.
func numberWordPriceQuoteRe() *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + numberWordAlternation() + `)\s*(cedis?|pesewas?)\b`)
}

// Match is the outcome of classifying an utterance against every pattern
// group.
type Match struct {
	Group      PatternGroup
	Confidence float64
}

// ClassifyUtterance matches utterance against every pattern group and
// returns the highest-confidence match, breaking ties by group priority.
// Returns a zero-value Match with Group == GroupNone if nothing matched.
func ClassifyUtterance(utterance string) Match {
	var best Match
	for group, patterns := range groupPatterns {
		for _, p := range patterns {
			if !p.re.MatchString(utterance) {
				continue
			}
			if p.confidence > best.Confidence ||
				(p.confidence == best.Confidence && priority[group] > priority[best.Group]) {
				best = Match{Group: group, Confidence: p.confidence}
			}
		}
	}
	return best
}
