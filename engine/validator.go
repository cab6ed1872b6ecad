package engine

import (
	"context"
	"strings"

	phraseerrors "phrasepool.dev/errors"
	"phrasepool.dev/config"
	"phrasepool.dev/metrics"
)

// SimilarityModel computes a sentence-embedding cosine similarity in
// [0, 1]. Grounded on phrase_validator.py's lazy-loaded
// SentenceTransformer + sklearn.cosine_similarity; the engine only needs
// the interface, with a deterministic fallback standing in for the actual
// embedding service (an external collaborator per spec.md §1).
type SimilarityModel interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Validator implements C1: format, dictionary, overlap, and similarity
// checks for prompt and copy phrases. A long-lived singleton; the
// embedding model is resolved lazily by whatever SimilarityModel the
// caller wires in at construction, not reloaded per call.
type Validator struct {
	cfg   *config.Config
	model SimilarityModel
}

func NewValidator(cfg *config.Config, model SimilarityModel) *Validator {
	return &Validator{cfg: cfg, model: model}
}

// normalize trims, collapses interior whitespace, and uppercases for
// comparison — the shape the round/phraseset records store for a
// submitted phrase.
func normalize(phrase string) string {
	fields := strings.Fields(strings.TrimSpace(phrase))
	return strings.ToUpper(strings.Join(fields, " "))
}

func isAlphaSpace(s string) bool {
	for _, r := range s {
		if r == ' ' {
			continue
		}
		if r < 'A' || r > 'Z' {
			if r < 'a' || r > 'z' {
				return false
			}
		}
	}
	return true
}

// ValidatePrompt runs the format and dictionary checks only. It takes no
// prompt text, original, or other-copy context, so no significant-word
// overlap or semantic-similarity check runs for a prompt phrase.
func (v *Validator) ValidatePrompt(ctx context.Context, phrase string) (string, error) {
	normalized, err := v.validateFormat(phrase)
	if err != nil {
		metrics.ValidatorRejectionsTotal.WithLabelValues("format").Inc()
		return "", err
	}
	return normalized, nil
}

// ValidateCopy runs the full C1 pipeline: format, dictionary, exact-duplicate,
// significant-word overlap, and semantic similarity against original and
// (if present) the other submitted copy, plus the prompt text for overlap.
// otherCopy is "" when only one copy has been submitted so far.
func (v *Validator) ValidateCopy(ctx context.Context, phrase, original, otherCopy, promptText string) (string, error) {
	normalized, err := v.validateFormat(phrase)
	if err != nil {
		metrics.ValidatorRejectionsTotal.WithLabelValues("format").Inc()
		return "", err
	}

	normalizedOriginal := normalize(original)
	if normalized == normalizedOriginal {
		metrics.ValidatorRejectionsTotal.WithLabelValues("duplicate_original").Inc()
		return "", phraseerrors.ErrDuplicatePhrase
	}
	if otherCopy != "" {
		normalizedOther := normalize(otherCopy)
		if normalized == normalizedOther {
			metrics.ValidatorRejectionsTotal.WithLabelValues("duplicate_other_copy").Inc()
			return "", phraseerrors.ErrDuplicatePhrase
		}
	}

	references := []string{normalizedOriginal}
	if otherCopy != "" {
		references = append(references, normalize(otherCopy))
	}
	if promptText != "" {
		references = append(references, normalize(promptText))
	}
	for _, ref := range references {
		if v.sharesSignificantWord(normalized, ref) {
			metrics.ValidatorRejectionsTotal.WithLabelValues("word_overlap").Inc()
			return "", phraseerrors.ErrPhraseTooSimilar
		}
	}

	if err := v.checkSemanticSimilarity(ctx, normalized, normalizedOriginal, otherCopy, failClosed); err != nil {
		return "", err
	}

	return normalized, nil
}

const (
	failOpen   = false
	failClosed = true
)

func (v *Validator) checkSemanticSimilarity(ctx context.Context, candidate, original, otherCopy string, policy bool) error {
	if v.model == nil {
		return nil
	}

	sim, err := v.model.Similarity(ctx, candidate, original)
	if err != nil {
		return v.similarityFailure(policy)
	}
	if sim >= v.cfg.SimilarityThreshold {
		metrics.ValidatorRejectionsTotal.WithLabelValues("similarity_original").Inc()
		return phraseerrors.ErrPhraseTooSimilar
	}

	if otherCopy != "" {
		sim, err := v.model.Similarity(ctx, candidate, normalize(otherCopy))
		if err != nil {
			return v.similarityFailure(policy)
		}
		if sim >= v.cfg.SimilarityThreshold {
			metrics.ValidatorRejectionsTotal.WithLabelValues("similarity_other_copy").Inc()
			return phraseerrors.ErrPhraseTooSimilar
		}
	}
	return nil
}

// similarityFailure implements spec.md §4.1's failure policy: fail-closed
// for copies (the caller passes policy=failClosed), fail-open for
// prompt-only validation (no caller currently does — ValidatePrompt never
// invokes the similarity subsystem at all, since a lone phrase has nothing
// to compare against).
func (v *Validator) similarityFailure(policy bool) error {
	metrics.ValidatorRejectionsTotal.WithLabelValues("similarity_unavailable").Inc()
	if policy == failClosed {
		return phraseerrors.ErrPhraseTooSimilar
	}
	return nil
}

func (v *Validator) validateFormat(phrase string) (string, error) {
	trimmed := strings.TrimSpace(phrase)
	if trimmed == "" {
		return "", phraseerrors.ErrInvalidPhrase
	}
	if len(trimmed) > v.cfg.PhraseMaxLength {
		return "", phraseerrors.ErrInvalidPhrase
	}
	if !isAlphaSpace(trimmed) {
		return "", phraseerrors.ErrInvalidPhrase
	}

	words := strings.Fields(trimmed)
	if len(words) < v.cfg.PhraseMinWords || len(words) > v.cfg.PhraseMaxWords {
		return "", phraseerrors.ErrInvalidPhrase
	}

	for _, word := range words {
		upper := strings.ToUpper(word)
		if v.cfg.IsConnectingWord(upper) {
			continue
		}
		if len(word) < v.cfg.PhraseMinCharPerWord || len(word) > v.cfg.PhraseMaxCharPerWord {
			return "", phraseerrors.ErrInvalidPhrase
		}
		if !inDictionary(upper) {
			return "", phraseerrors.ErrInvalidPhrase
		}
	}

	return normalize(trimmed), nil
}

// sharesSignificantWord reports whether candidate and reference share a
// significant word (alphabetic token of length >= SignificantWordMinLength),
// or any pair of their significant words is "too similar" by LCS ratio.
func (v *Validator) sharesSignificantWord(candidate, reference string) bool {
	candidateWords := significantWords(candidate, v.cfg.SignificantWordMinLength)
	referenceWords := significantWords(reference, v.cfg.SignificantWordMinLength)

	for _, cw := range candidateWords {
		for _, rw := range referenceWords {
			if cw == rw {
				return true
			}
			if lcsRatio(cw, rw) >= v.cfg.WordSimilarityThreshold {
				return true
			}
		}
	}
	return false
}

func significantWords(phrase string, minLength int) []string {
	words := strings.Fields(phrase)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= minLength {
			out = append(out, w)
		}
	}
	return out
}

// lcsRatio returns the longest-common-subsequence length of a and b divided
// by the length of the longer word, matching spec.md §4.1's "too similar"
// definition.
func lcsRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcsLen := prev[lb]
	longer := la
	if lb > longer {
		longer = lb
	}
	return float64(lcsLen) / float64(longer)
}
