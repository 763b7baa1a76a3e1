package labelmatch

import "math"

// Dot is the inner product of two vectors, accumulated in float64.
// For unit-length vectors it equals cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Cosine computes cosine similarity without assuming unit length.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// similarityFunc picks the comparison for a catalog.
func similarityFunc(normalized bool) func(a, b []float32) float64 {
	if normalized {
		return Dot
	}
	return Cosine
}

// L2Normalize scales vec to unit length in place and returns it. A zero vector is returned unchanged.
func L2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) * inv)
	}
	return vec
}

// IsUnit reports whether vec has length one within tol.
func IsUnit(vec []float32, tol float64) bool {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Abs(math.Sqrt(sum)-1) <= tol
}

func cloneVector(vec []float32) []float32 {
	if vec == nil {
		return nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
