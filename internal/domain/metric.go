package domain

// Metric names the scoring function a vector store reports hits in.
type Metric string

const (
	MetricCosineSimilarity  Metric = "cosine_similarity"
	MetricDotProduct        Metric = "dot_product"
	MetricEuclideanDistance Metric = "euclidean_distance"
	MetricCosineDistance    Metric = "cosine_distance"
)

// Similarity converts a native score into a similarity where higher is better.
//
//	cosine similarity, dot product: unchanged
//	euclidean distance d:          1 / (1 + d)
//	cosine distance d:             1 - d
func Similarity(metric Metric, score float64) float64 {
	switch metric {
	case MetricEuclideanDistance:
		if score < 0 {
			score = 0
		}
		return 1 / (1 + score)
	case MetricCosineDistance:
		return 1 - score
	default:
		return score
	}
}
