package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder turns text into a vector. Implementations may call a remote model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// HashEmbedder is a deterministic bag-of-words embedder: every token is hashed
// into one of Dims signed buckets and the result is L2 normalized.
type HashEmbedder struct {
	Dims int
}

func (h HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return h.vector(text), nil
}

func (h HashEmbedder) vector(text string) []float64 {
	dims := h.Dims
	if dims <= 0 {
		dims = 64
	}
	v := make([]float64, dims)
	for _, tok := range Tokens(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(dims))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}
	normalize(v)
	return v
}

// Tokens lowercases text and splits it on anything that is not a letter or digit.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float64) {
	var n float64
	for _, x := range v {
		n += x * x
	}
	if n == 0 {
		return
	}
	n = math.Sqrt(n)
	for i := range v {
		v[i] /= n
	}
}

// Cosine returns 0 for empty or mismatched vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordOverlap is the Jaccard index of the two token sets.
func keywordOverlap(a, b string) float64 {
	ta, tb := map[string]bool{}, map[string]bool{}
	for _, t := range Tokens(a) {
		ta[t] = true
	}
	for _, t := range Tokens(b) {
		tb[t] = true
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(ta)+len(tb)-inter)
}
