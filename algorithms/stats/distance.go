package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SimilarityMetric selects how two profiles are compared
type SimilarityMetric int

const (
	CosineSimilarity SimilarityMetric = iota
	PearsonSimilarity
	// CombinedSimilarity averages cosine similarity and Pearson correlation
	CombinedSimilarity
)

func (m SimilarityMetric) String() string {
	switch m {
	case CosineSimilarity:
		return "cosine"
	case PearsonSimilarity:
		return "pearson"
	case CombinedSimilarity:
		return "combined"
	default:
		return "unknown"
	}
}

// SimilarityFunction scores how alike two equal-length vectors are
type SimilarityFunction func(a, b []float64) float64

// GetSimilarityFunction returns the scoring function for the given metric
func GetSimilarityFunction(metric SimilarityMetric) SimilarityFunction {
	switch metric {
	case CosineSimilarity:
		return CosineSimilarityFunc
	case PearsonSimilarity:
		return PearsonCorrelationFunc
	default:
		return CombinedSimilarityFunc
	}
}

// CosineSimilarityFunc calculates cosine similarity between two vectors.
// Zero vectors and mismatched lengths score 0.
func CosineSimilarityFunc(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0.0
	}

	similarity := floats.Dot(a, b) / (normA * normB)
	if math.IsNaN(similarity) {
		return 0.0
	}
	return similarity
}

// PearsonCorrelationFunc calculates the Pearson correlation coefficient.
// Constant inputs have no defined correlation and score 0.
func PearsonCorrelationFunc(a, b []float64) float64 {
	if len(a) < 2 || len(a) != len(b) {
		return 0.0
	}

	corr := stat.Correlation(a, b, nil)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0.0
	}
	return corr
}

// CombinedSimilarityFunc is the mean of cosine similarity and Pearson
// correlation
func CombinedSimilarityFunc(a, b []float64) float64 {
	return 0.5 * (CosineSimilarityFunc(a, b) + PearsonCorrelationFunc(a, b))
}
