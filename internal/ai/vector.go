package ai

import "math"

// normalize scales a vector to unit length in place and returns it. Zero
// vectors are returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func normalizeAll(vecs [][]float32) [][]float32 {
	for i := range vecs {
		vecs[i] = normalize(vecs[i])
	}
	return vecs
}
