package clustering

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"blurredcluster/pkg/hitimage"
)

// eigenEpsilon is the relative size of the secondary eigenvalue below which a
// bin cloud is treated as perfectly straight
const eigenEpsilon = 1e-12

// MergeParams controls MergeClusters
type MergeParams struct {
	// Enabled turns merging on
	Enabled bool

	// MinClusterSize is the number of bins a cluster needs to be considered
	MinClusterSize int

	// Threshold is the linearity the union of two clusters must exceed
	Threshold float64

	// WeightByDensity weights each bin by its image density in the PCA
	WeightByDensity bool
}

// Validate checks the merge thresholds
func (p MergeParams) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.MinClusterSize < 0 {
		return errors.Wrapf(ErrInvalidParams, "min merge cluster size %d must not be negative", p.MinClusterSize)
	}
	if math.IsNaN(p.Threshold) || p.Threshold < 1 {
		return errors.Wrapf(ErrInvalidParams, "merging threshold %g must be at least 1", p.Threshold)
	}
	return nil
}

// MergeClusters joins clusters whose combined bins form a straight enough
// shape.
//
// Every pair of clusters with at least MinClusterSize bins is tested with
// Linearity on the union of their bins; pairs above Threshold are joined.
// Joins are transitive: if A joins B and B joins C, all three end up in one
// cluster even when A and C alone would not pass. A merged cluster takes the
// position of its first member in the output, with member bins concatenated in
// input order. Smaller clusters pass through untouched.
func MergeClusters(img *hitimage.Image, clusters []hitimage.BinCluster, p MergeParams) []hitimage.BinCluster {
	if !p.Enabled || len(clusters) < 2 {
		return clusters
	}

	var eligible []int
	for i, c := range clusters {
		if len(c) >= p.MinClusterSize && len(c) > 0 {
			eligible = append(eligible, i)
		}
	}

	uf := newUnionFind(len(clusters))
	for a := 0; a < len(eligible); a++ {
		for b := a + 1; b < len(eligible); b++ {
			i, j := eligible[a], eligible[b]
			combined := make(hitimage.BinCluster, 0, len(clusters[i])+len(clusters[j]))
			combined = append(combined, clusters[i]...)
			combined = append(combined, clusters[j]...)
			if Linearity(img, combined, p.WeightByDensity) > p.Threshold {
				uf.union(i, j)
			}
		}
	}

	// Collect groups in order of their lowest member index
	groupOf := make(map[int]int)
	var merged []hitimage.BinCluster
	for i, c := range clusters {
		root := uf.find(i)
		g, ok := groupOf[root]
		if !ok {
			g = len(merged)
			groupOf[root] = g
			merged = append(merged, make(hitimage.BinCluster, 0, len(c)))
		}
		merged[g] = append(merged[g], c...)
	}

	return merged
}

// Linearity returns the ratio of the larger to the smaller eigenvalue of the
// covariance of the bins' (wire, tick) coordinates. Straight thin shapes give
// large values, round blobs values near one. A cloud with no spread across its
// main axis returns +Inf; fewer than two bins return zero.
func Linearity(img *hitimage.Image, bins hitimage.BinCluster, weightByDensity bool) float64 {
	if len(bins) < 2 {
		return 0
	}

	points := mat.NewDense(len(bins), 2, nil)
	var weights []float64
	if weightByDensity {
		weights = make([]float64, len(bins))
	}
	for i, bin := range bins {
		wire, tick := img.WireTick(bin)
		points.Set(i, 0, float64(wire))
		points.Set(i, 1, float64(tick))
		if weights != nil {
			weights[i] = math.Max(img.Value(bin), 0)
		}
	}
	if weights != nil {
		// The ratio is scale free; rescale to a mean weight of one so the
		// weighted normalisation (sum-1) stays positive.
		if total := floats.Sum(weights); total > 0 {
			floats.Scale(float64(len(bins))/total, weights)
		} else {
			weights = nil
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, points, weights)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, false) {
		return 0
	}
	values := eig.Values(nil) // ascending
	minor, major := values[0], values[1]
	if major <= eigenEpsilon {
		// every bin at the same coordinate
		return 0
	}
	if minor <= eigenEpsilon*major {
		return math.Inf(1)
	}
	return major / minor
}
