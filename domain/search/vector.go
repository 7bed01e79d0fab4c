package search

import "math"

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Mismatched or empty vectors yield 0.
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

// CosineFromNormalized inverts NormalizeCosine, recovering the raw cosine
// similarity from a [0, 1] score.
func CosineFromNormalized(score float64) float64 {
	return 2*score - 1
}

// NormalizeCosine maps a cosine similarity into [0, 1].
func NormalizeCosine(sim float64) float64 {
	n := (sim + 1) / 2
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
