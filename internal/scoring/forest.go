package scoring

import (
	"math"
	"math/rand"
)

// eulerMascheroni is used in the average unsuccessful-search path length of a
// binary search tree, the normalizing constant of the isolation forest score.
const eulerMascheroni = 0.5772156649015329

// treeNode is one node of an isolation tree. Leaf nodes have no children and
// record how many training samples they absorbed. Field names are short
// because trees dominate the serialized artifact size.
type treeNode struct {
	Feature int       `json:"f,omitempty"`
	Split   float64   `json:"s,omitempty"`
	Left    *treeNode `json:"l,omitempty"`
	Right   *treeNode `json:"r,omitempty"`
	Size    int       `json:"n,omitempty"`
}

func (n *treeNode) leaf() bool { return n.Left == nil }

// forest is a fitted isolation-forest ensemble.
type forest struct {
	Trees      []*treeNode `json:"trees"`
	SampleSize int         `json:"sample_size"`
}

// fitForest grows nTrees isolation trees, each on a random subsample of data.
// Randomness comes from rng so training is reproducible under a fixed seed.
func fitForest(data [][]float64, nTrees, sampleSize int, rng *rand.Rand) *forest {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &forest{
		Trees:      make([]*treeNode, 0, nTrees),
		SampleSize: sampleSize,
	}
	sample := make([][]float64, sampleSize)
	for i := 0; i < nTrees; i++ {
		for j := range sample {
			sample[j] = data[rng.Intn(len(data))]
		}
		f.Trees = append(f.Trees, growTree(sample, 0, heightLimit, rng))
	}
	return f
}

// growTree recursively partitions sample with random single-feature splits
// until the height limit is reached or the partition cannot be split further.
func growTree(sample [][]float64, depth, limit int, rng *rand.Rand) *treeNode {
	if depth >= limit || len(sample) <= 1 {
		return &treeNode{Size: len(sample)}
	}

	nFeatures := len(sample[0])
	// Pick a feature with spread; if every feature is constant across the
	// partition the points are indistinguishable and we stop.
	order := rng.Perm(nFeatures)
	for _, feat := range order {
		lo, hi := sample[0][feat], sample[0][feat]
		for _, row := range sample[1:] {
			if row[feat] < lo {
				lo = row[feat]
			}
			if row[feat] > hi {
				hi = row[feat]
			}
		}
		if hi <= lo {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, row := range sample {
			if row[feat] < split {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}
		return &treeNode{
			Feature: feat,
			Split:   split,
			Left:    growTree(left, depth+1, limit, rng),
			Right:   growTree(right, depth+1, limit, rng),
		}
	}
	return &treeNode{Size: len(sample)}
}

// pathLength returns the isolation depth of x in one tree, with the standard
// adjustment for samples terminating in a populated leaf.
func pathLength(x []float64, n *treeNode, depth float64) float64 {
	if n.leaf() {
		return depth + avgPathLength(n.Size)
	}
	if x[n.Feature] < n.Split {
		return pathLength(x, n.Left, depth+1)
	}
	return pathLength(x, n.Right, depth+1)
}

// avgPathLength is c(n): the average path length of an unsuccessful BST search
// over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
}

// scoreSample returns the raw sample score of x in (-1, 0): the negated
// isolation-forest anomaly measure. Values near -1 indicate strong anomalies,
// values near -0.5 and above indicate inliers.
func (f *forest) scoreSample(x []float64) float64 {
	var total float64
	for _, t := range f.Trees {
		total += pathLength(x, t, 0)
	}
	avgDepth := total / float64(len(f.Trees))
	return -math.Pow(2, -avgDepth/avgPathLength(f.SampleSize))
}
