// Package vocabulary holds the stall's known product names and normalizes a
// recognized product phrase against it, using Double Metaphone phonetic
// candidate filtering plus Jaro-Winkler ranking, adapted from the pack's
// phonetic transcript-correction matcher to the product-normalization
// domain.
package vocabulary

import (
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// Product is a known product the stall sells, with any known aliases
// (e.g. local-language names) normalized to the same canonical name.
type Product struct {
	Name    string
	Aliases []string
}

// Vocabulary holds a stall's product list and matches spoken phrases
// against it with exact, phonetic and fuzzy-edit-distance fallbacks.
type Vocabulary struct {
	mu                sync.RWMutex
	byExact           map[string]string // lowercased alias/name -> canonical name
	names             []string          // canonical names, for iteration order
	fuzzyMinSimilarity float64
}

// New builds an empty Vocabulary. fuzzyMinSimilarity is the minimum
// normalized edit-distance similarity (1 - distance/maxlen) required to
// accept a fuzzy match; the default deployment uses 0.8.
func New(fuzzyMinSimilarity float64) *Vocabulary {
	return &Vocabulary{
		byExact:            make(map[string]string),
		fuzzyMinSimilarity: fuzzyMinSimilarity,
	}
}

// Add registers a product and its aliases.
func (v *Vocabulary) Add(p Product) {
	v.mu.Lock()
	defer v.mu.Unlock()

	canonical := p.Name
	v.byExact[strings.ToLower(strings.TrimSpace(canonical))] = canonical
	for _, a := range p.Aliases {
		v.byExact[strings.ToLower(strings.TrimSpace(a))] = canonical
	}
	for _, n := range v.names {
		if n == canonical {
			return
		}
	}
	v.names = append(v.names, canonical)
}

// Names returns the canonical product names currently known, sorted for
// deterministic iteration.
func (v *Vocabulary) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := append([]string(nil), v.names...)
	sort.Strings(out)
	return out
}

// MatchResult is the outcome of normalizing a spoken product phrase.
type MatchResult struct {
	Canonical  string
	Confidence float64
	Matched    bool
	Method     string // "exact", "phonetic", "fuzzy", or "" when unmatched
}

// Normalize matches phrase against the vocabulary: first an exact
// case-insensitive lookup, then Double-Metaphone phonetic candidate
// filtering ranked by Jaro-Winkler, then a Levenshtein-distance fuzzy
// fallback requiring at least fuzzyMinSimilarity.
func (v *Vocabulary) Normalize(phrase string) MatchResult {
	v.mu.RLock()
	defer v.mu.RUnlock()

	clean := strings.ToLower(strings.TrimSpace(phrase))
	if clean == "" {
		return MatchResult{}
	}

	if canonical, ok := v.byExact[clean]; ok {
		return MatchResult{Canonical: canonical, Confidence: 1.0, Matched: true, Method: "exact"}
	}

	if canonical, score, ok := v.phoneticMatch(clean); ok {
		return MatchResult{Canonical: canonical, Confidence: score, Matched: true, Method: "phonetic"}
	}

	if canonical, score, ok := v.fuzzyMatch(clean); ok {
		return MatchResult{Canonical: canonical, Confidence: score, Matched: true, Method: "fuzzy"}
	}

	return MatchResult{}
}

const phoneticJaroWinklerThreshold = 0.70

func (v *Vocabulary) phoneticMatch(clean string) (string, float64, bool) {
	inputCodes := doubleMetaphoneCodes(clean)
	if len(inputCodes) == 0 {
		return "", 0, false
	}

	var bestName string
	var bestScore float64
	for alias, canonical := range v.byExact {
		aliasCodes := doubleMetaphoneCodes(alias)
		if !codesOverlap(inputCodes, aliasCodes) {
			continue
		}
		score := matchr.JaroWinkler(clean, alias, false)
		if score >= phoneticJaroWinklerThreshold && score > bestScore {
			bestScore = score
			bestName = canonical
		}
	}
	if bestName == "" {
		return "", 0, false
	}
	return bestName, bestScore, true
}

func (v *Vocabulary) fuzzyMatch(clean string) (string, float64, bool) {
	var bestName string
	var bestScore float64
	for alias, canonical := range v.byExact {
		dist := matchr.Levenshtein(clean, alias)
		maxLen := len(clean)
		if len(alias) > maxLen {
			maxLen = len(alias)
		}
		if maxLen == 0 {
			continue
		}
		similarity := 1 - float64(dist)/float64(maxLen)
		if similarity >= v.fuzzyMinSimilarity && similarity > bestScore {
			bestScore = similarity
			bestName = canonical
		}
	}
	if bestName == "" {
		return "", 0, false
	}
	return bestName, bestScore, true
}

func doubleMetaphoneCodes(phrase string) map[string]struct{} {
	codes := make(map[string]struct{})
	for _, tok := range strings.Fields(phrase) {
		p, s := matchr.DoubleMetaphone(tok)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
