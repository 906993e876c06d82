package retrieval

import (
	"math"
	"sort"

	"github.com/jihoon-dev/portfolio-chat/internal/index"
)

// InvalidScore marks a similarity that could not be computed: mismatched
// vector lengths, an empty vector or a zero-magnitude vector. It sits
// below any valid cosine value so invalid chunks never outrank real ones.
const InvalidScore = -1.0

// priorityBoost is added per document priority point. Small on purpose:
// it breaks ties and nudges ranking, it never dominates similarity.
const priorityBoost = 0.02

// Scored is a chunk plus its request-scoped weighted score. Never
// persisted.
type Scored struct {
	Chunk index.Chunk
	Score float64
}

// Cosine returns the cosine similarity of two equal-length nonzero
// vectors, or InvalidScore when the inputs are not comparable. It never
// returns NaN.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return InvalidScore
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return InvalidScore
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopChunks scores every chunk against the query vector and returns up to
// topK results ordered by descending weighted score. Chunks with an
// invalid or non-finite score are dropped. The sort is stable so exact
// ties keep their index order and results stay deterministic.
func TopChunks(chunks []index.Chunk, query []float32, topK int) []Scored {
	if topK <= 0 {
		return nil
	}
	scored := make([]Scored, 0, len(chunks))
	for _, ch := range chunks {
		sim := Cosine(ch.Vector, query)
		if sim == InvalidScore {
			continue
		}
		score := sim + float64(ch.Metadata.Priority)*priorityBoost
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		scored = append(scored, Scored{Chunk: ch, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
