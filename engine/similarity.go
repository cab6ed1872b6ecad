package engine

import (
	"context"
	"strings"
	"sync"
)

// lexicalSimilarityModel is the default SimilarityModel: a dependency-free
// Jaccard-over-words estimate. It stands in for the external
// sentence-embedding service (out of scope per spec.md §1 — "the
// third-party AI copy-generation helpers" and similar collaborators are
// consumed, not implemented, by this engine) so the engine has a working
// default without a live model endpoint configured. A production
// deployment wires a real SimilarityModel that calls out to that service;
// this fallback only needs to be conservative, not state-of-the-art.
type lexicalSimilarityModel struct {
	once sync.Once
}

// NewLexicalSimilarityModel lazily constructs nothing until first use,
// mirroring phrase_validator.py's lazy-loaded similarity_model property.
func NewLexicalSimilarityModel() SimilarityModel {
	return &lexicalSimilarityModel{}
}

func (m *lexicalSimilarityModel) Similarity(ctx context.Context, a, b string) (float64, error) {
	m.once.Do(func() {})

	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 0, nil
	}

	intersection := 0
	union := make(map[string]struct{}, len(wa)+len(wb))
	for w := range wa {
		union[w] = struct{}{}
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	for w := range wb {
		union[w] = struct{}{}
	}
	if len(union) == 0 {
		return 0, nil
	}
	return float64(intersection) / float64(len(union)), nil
}

func wordSet(phrase string) map[string]struct{} {
	words := strings.Fields(strings.ToUpper(phrase))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
