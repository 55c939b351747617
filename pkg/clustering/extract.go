// Package clustering finds connected regions of charge in a blurred hit image
// and merges region fragments that line up into one trajectory.
package clustering

import (
	"sort"

	"github.com/pkg/errors"

	"blurredcluster/pkg/hitimage"
)

// ErrInvalidParams is returned for clustering parameters that cannot be used
var ErrInvalidParams = errors.New("invalid clustering parameters")

// ExtractParams controls region growing in FindClusters
type ExtractParams struct {
	// MinSeed is the density a bin must exceed to take part in clustering
	MinSeed float64

	// WireDistance and TickDistance bound the rectangle searched around each
	// cluster bin for new members
	WireDistance int
	TickDistance int

	// NeighboursThreshold is the number of qualifying bins a bin needs in its
	// 8-neighbourhood before it may join a cluster
	NeighboursThreshold int

	// MinNeighbours is the minimum number of adjacent bin pairs a finished
	// cluster must contain
	MinNeighbours int

	// MinSize is the minimum number of bins in a cluster
	MinSize int
}

// Validate checks the search window and thresholds
func (p ExtractParams) Validate() error {
	if p.WireDistance < 1 || p.TickDistance < 1 {
		return errors.Wrapf(ErrInvalidParams, "cluster window (%d, %d) must be positive", p.WireDistance, p.TickDistance)
	}
	if !(p.MinSeed >= 0) {
		return errors.Wrapf(ErrInvalidParams, "seed threshold %g must not be negative", p.MinSeed)
	}
	if p.NeighboursThreshold < 0 || p.MinNeighbours < 0 || p.MinSize < 0 {
		return errors.Wrapf(ErrInvalidParams, "neighbour threshold %d, min neighbours %d, min size %d must not be negative",
			p.NeighboursThreshold, p.MinNeighbours, p.MinSize)
	}
	return nil
}

// bin states during extraction
const (
	free     = 0  // qualifying, not yet claimed
	below    = -1 // at or below the seed threshold
	consumed = -2 // claimed by a finished (kept or rejected) region
)

// extractor holds the per-image working state of FindClusters
type extractor struct {
	img    *hitimage.Image
	params ExtractParams
	// label is free, below, consumed, or the id (>0) of the region being grown
	label []int
}

// FindClusters groups the bins of a blurred image into clusters.
//
// Bins above MinSeed are visited from the densest down. Each unclaimed one
// that has enough qualifying neighbours starts a region, which grows
// breadth-first through every qualifying unclaimed bin inside the search
// window of a member, provided that bin also has enough neighbours. A finished
// region is kept if it has at least MinSize bins and MinNeighbours adjacent
// pairs. Bins of a rejected region are not reused, so every bin ends up in at
// most one cluster.
//
// Parameters are assumed valid; see ExtractParams.Validate.
func FindClusters(img *hitimage.Image, p ExtractParams) []hitimage.BinCluster {
	if img.Empty() {
		return nil
	}

	e := &extractor{
		img:    img,
		params: p,
		label:  make([]int, img.NumBins()),
	}

	seeds := make([]int, 0)
	for bin, v := range img.Data {
		if v > p.MinSeed {
			seeds = append(seeds, bin)
		} else {
			e.label[bin] = below
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		return img.Data[seeds[i]] > img.Data[seeds[j]]
	})

	var clusters []hitimage.BinCluster
	regionID := 0
	for _, seed := range seeds {
		if e.label[seed] != free {
			continue
		}
		if e.numNeighbours(seed, 0) < p.NeighboursThreshold {
			continue
		}

		regionID++
		region := e.grow(seed, regionID)

		for _, bin := range region {
			e.label[bin] = consumed
		}
		if len(region) < p.MinSize || adjacentPairs(img, region) < p.MinNeighbours {
			continue
		}
		clusters = append(clusters, region)
	}

	return clusters
}

// grow expands a region from seed using a queue of member bins
func (e *extractor) grow(seed, id int) hitimage.BinCluster {
	img := e.img
	e.label[seed] = id
	region := hitimage.BinCluster{seed}

	for head := 0; head < len(region); head++ {
		x, y := img.Local(region[head])
		for nx := x - e.params.WireDistance; nx <= x+e.params.WireDistance; nx++ {
			for ny := y - e.params.TickDistance; ny <= y+e.params.TickDistance; ny++ {
				if !img.Contains(nx, ny) {
					continue
				}
				nbin := img.LocalBin(nx, ny)
				if e.label[nbin] != free {
					continue
				}
				if e.numNeighbours(nbin, id) < e.params.NeighboursThreshold {
					continue
				}
				e.label[nbin] = id
				region = append(region, nbin)
			}
		}
	}

	return region
}

// numNeighbours counts the bins in the 8-neighbourhood of bin that are either
// unclaimed qualifying bins or members of region id.
func (e *extractor) numNeighbours(bin, id int) int {
	x, y := e.img.Local(bin)
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if !e.img.Contains(x+dx, y+dy) {
				continue
			}
			l := e.label[e.img.LocalBin(x+dx, y+dy)]
			if l == free || (id > 0 && l == id) {
				n++
			}
		}
	}
	return n
}

// adjacentPairs counts the pairs of 8-adjacent bins within a region
func adjacentPairs(img *hitimage.Image, region hitimage.BinCluster) int {
	members := make(map[int]struct{}, len(region))
	for _, bin := range region {
		members[bin] = struct{}{}
	}

	// Count each pair once by only looking "forward"
	forward := [4][2]int{{1, -1}, {1, 0}, {1, 1}, {0, 1}}
	pairs := 0
	for _, bin := range region {
		x, y := img.Local(bin)
		for _, d := range forward {
			if !img.Contains(x+d[0], y+d[1]) {
				continue
			}
			if _, ok := members[img.LocalBin(x+d[0], y+d[1])]; ok {
				pairs++
			}
		}
	}
	return pairs
}
