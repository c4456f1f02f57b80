package analyzer

import (
	"math"
	"strings"
)

type Algorithm int

const (
	Cosine Algorithm = iota
	Jaccard
	Levenshtein
	NGram
)

// DefaultAlgorithm is used for empty or unrecognised names.
const DefaultAlgorithm = Cosine

// NGramSize is the token window of the n-gram algorithm.
const NGramSize = 3

var algorithmNames = map[Algorithm]string{
	Cosine:      "cosine",
	Jaccard:     "jaccard",
	Levenshtein: "levenshtein",
	NGram:       "ngram",
}

var algorithmAliases = map[string]Algorithm{
	"cosine":      Cosine,
	"jaccard":     Jaccard,
	"levenshtein": Levenshtein,
	"ngram":       NGram,
	"n-gram":      NGram,
	"trigram":     NGram,
}

type similarityFunc func(a, b []string) float64

var algorithmFuncs = map[Algorithm]similarityFunc{
	Cosine:      CosineSimilarity,
	Jaccard:     JaccardSimilarity,
	Levenshtein: LevenshteinSimilarity,
	NGram: func(a, b []string) float64 {
		return NGramSimilarity(a, b, NGramSize)
	},
}

// ParseAlgorithm is case-insensitive and never fails: unknown names select
// DefaultAlgorithm. The second result reports whether the name was known.
func ParseAlgorithm(name string) (Algorithm, bool) {
	alg, ok := algorithmAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DefaultAlgorithm, false
	}
	return alg, true
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return algorithmNames[DefaultAlgorithm]
}

func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	*a, _ = ParseAlgorithm(string(text))
	return nil
}

func Algorithms() []Algorithm {
	return []Algorithm{Cosine, Jaccard, Levenshtein, NGram}
}

// Similarity dispatches to the algorithm's function; out-of-range values use
// DefaultAlgorithm.
func Similarity(alg Algorithm, tokensA, tokensB []string) float64 {
	fn, ok := algorithmFuncs[alg]
	if !ok {
		fn = algorithmFuncs[DefaultAlgorithm]
	}
	return clamp01(fn(tokensA, tokensB))
}

// CosineSimilarity works on term frequencies. Counts are accumulated as
// integers so the result does not depend on map iteration order.
func CosineSimilarity(a, b []string) float64 {
	freqA := termFrequencies(a)
	freqB := termFrequencies(b)

	var dot, normA, normB int64
	for term, countA := range freqA {
		dot += countA * freqB[term]
		normA += countA * countA
	}
	for _, countB := range freqB {
		normB += countB * countB
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(float64(dot) / math.Sqrt(float64(normA)*float64(normB)))
}

// JaccardSimilarity returns 0 when both sides are empty.
func JaccardSimilarity(a, b []string) float64 {
	return jaccard(toSet(a), toSet(b))
}

// LevenshteinSimilarity compares the space-joined token strings; two empty
// strings are identical (1.0).
func LevenshteinSimilarity(a, b []string) float64 {
	textA := strings.Join(a, " ")
	textB := strings.Join(b, " ")

	maxLen := max(len(textA), len(textB))
	if maxLen == 0 {
		return 1
	}

	return clamp01(1 - float64(editDistance(textA, textB))/float64(maxLen))
}

// NGramSimilarity applies Jaccard to sets of contiguous n-token windows. A
// side shorter than n contributes its joined tokens as a single element; a
// side without tokens contributes nothing.
func NGramSimilarity(a, b []string, n int) float64 {
	if n < 1 {
		n = 1
	}
	return jaccard(ngrams(a, n), ngrams(b, n))
}

func ngrams(tokens []string, n int) map[string]struct{} {
	set := make(map[string]struct{})
	if len(tokens) == 0 {
		return set
	}
	if len(tokens) < n {
		set[strings.Join(tokens, " ")] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+n], " ")] = struct{}{}
	}
	return set
}

func jaccard(setA, setB map[string]struct{}) float64 {
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for item := range setA {
		if _, ok := setB[item]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// editDistance is the classic insert/delete/substitute distance over bytes;
// tokens only ever contain ASCII letters and spaces.
func editDistance(s1, s2 string) int {
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

func termFrequencies(tokens []string) map[string]int64 {
	freq := make(map[string]int64, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
