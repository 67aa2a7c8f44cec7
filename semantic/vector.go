package semantic

import "math"

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Empty vectors,
// vectors of different length and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return max(-1, min(1, dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}

// Similarity is Cosine clipped to [0, 1]: opposite meanings count as unrelated.
func Similarity(a, b []float32) float64 {
	return max(0, Cosine(a, b))
}

// SimilarityMany scores v against every vector of vs.
func SimilarityMany(v []float32, vs [][]float32) []float64 {
	out := make([]float64, len(vs))
	for i, w := range vs {
		out[i] = Similarity(v, w)
	}
	return out
}
