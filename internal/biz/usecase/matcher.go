package usecase

import (
	"math"
	"strings"
	"unicode"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// MatchResult is the template-matcher verdict for one candidate text.
type MatchResult struct {
	Matched bool
	Name    string
	Score   float64
}

// Normalize folds a candidate into a compact signature insensitive to
// spacing and punctuation: full-width characters become half-width, letters
// are lowercased, and everything that is not a letter, digit or CJK
// ideograph is stripped. Idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		// Full-width ASCII block to half-width; ideographic space to space.
		if r >= 0xFF01 && r <= 0xFF5E {
			r -= 0xFEE0
		} else if r == 0x3000 {
			r = ' '
		}
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nGrams builds the character n-gram set of s.
func nGrams(s string, n int) map[string]struct{} {
	set := make(map[string]struct{})
	runes := []rune(s)
	if len(runes) == 0 {
		return set
	}
	if n > len(runes) {
		n = len(runes)
	}
	if n < 1 {
		n = 1
	}
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b|, with 1.0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// JaccardScore scores the n-gram similarity of two texts after
// normalization. n is 3, or 2 when the shorter normalized text has fewer
// than 3 runes. Symmetric; identical inputs score 1.
func JaccardScore(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	n := 3
	if min(len([]rune(na)), len([]rune(nb))) < 3 {
		n = 2
	}
	return jaccard(nGrams(na, n), nGrams(nb, n))
}

// CoverageScore treats each non-empty template line (trailing colon
// stripped) as a required field label and scores the fraction of labels
// found as substrings of the normalized candidate. 0 when the template has
// no usable labels.
func CoverageScore(candidate, templateContent string) float64 {
	norm := Normalize(candidate)
	hit, need := 0, 0
	for _, line := range strings.Split(templateContent, "\n") {
		label := strings.TrimSpace(line)
		label = strings.TrimSuffix(strings.TrimSuffix(label, ":"), "：")
		label = Normalize(label)
		if label == "" {
			continue
		}
		need++
		if strings.Contains(norm, label) {
			hit++
		}
	}
	if need == 0 {
		return 0
	}
	return float64(hit) / float64(need)
}

// Detect runs the candidate against the template catalog and keeps the
// highest-scoring template. Each template scores as the better of field
// coverage and n-gram Jaccard, so label-style templates match on their
// fields and free-text templates on overall similarity. The verdict matches
// only when the best score meets that template's effective threshold.
// Degenerate input never fails, it degrades to no match.
func Detect(text string, templates []domain.AdTemplate, defaultThreshold float64) MatchResult {
	if Normalize(text) == "" || len(templates) == 0 {
		return MatchResult{}
	}

	var (
		bestName      string
		bestScore     float64
		bestThreshold = domain.ClampThreshold(defaultThreshold)
	)
	for _, tpl := range templates {
		score := CoverageScore(text, tpl.Content)
		if j := JaccardScore(text, tpl.Content); j > score {
			score = j
		}
		if score > bestScore {
			bestName = tpl.Name
			bestScore = score
			bestThreshold = tpl.EffectiveThreshold(defaultThreshold)
		}
	}

	if bestName == "" || bestScore < bestThreshold {
		return MatchResult{}
	}
	return MatchResult{
		Matched: true,
		Name:    bestName,
		Score:   math.Round(bestScore*1000) / 1000,
	}
}
