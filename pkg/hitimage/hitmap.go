package hitimage

import (
	"github.com/google/uuid"

	"blurredcluster/internal/models"
)

// HitMap resolves a global (wire, tick) coordinate to the index of the hit
// recorded there.
//
// Only one hit is kept per coordinate: when several hits share a bin the last
// one written wins. The image keeps the summed charge of all of them; only the
// lookup is lossy.
type HitMap struct {
	hits map[int]map[int]int
}

// NewHitMap creates an empty hit map
func NewHitMap() *HitMap {
	return &HitMap{hits: make(map[int]map[int]int)}
}

// Set records hit index idx at (wire, tick), replacing any previous entry
func (hm *HitMap) Set(wire, tick, idx int) {
	ticks, ok := hm.hits[wire]
	if !ok {
		ticks = make(map[int]int)
		hm.hits[wire] = ticks
	}
	ticks[tick] = idx
}

// Lookup returns the hit index stored at (wire, tick)
func (hm *HitMap) Lookup(wire, tick int) (int, bool) {
	ticks, ok := hm.hits[wire]
	if !ok {
		return 0, false
	}
	idx, ok := ticks[tick]
	return idx, ok
}

// Len returns the number of occupied coordinates
func (hm *HitMap) Len() int {
	n := 0
	for _, ticks := range hm.hits {
		n += len(ticks)
	}
	return n
}

// BinsToHits returns the indices of the hits behind the given bins, in bin
// order. Bins without an originating hit (charge spread there by blurring)
// are skipped.
func BinsToHits(img *Image, hm *HitMap, bins BinCluster) []int {
	out := make([]int, 0, len(bins))
	seen := make(map[int]struct{}, len(bins))
	for _, bin := range bins {
		if bin < 0 || bin >= img.NumBins() {
			continue
		}
		wire, tick := img.WireTick(bin)
		idx, ok := hm.Lookup(wire, tick)
		if !ok {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

// ConvertBinsToClusters maps every bin cluster onto the hits it covers.
// hits must be the slice the HitMap was built from. Clusters that cover no
// hit at all are dropped.
func ConvertBinsToClusters(img *Image, hm *HitMap, hits []*models.Hit, clusters []BinCluster, key models.PlaneKey) []models.HitCluster {
	out := make([]models.HitCluster, 0, len(clusters))
	for _, bins := range clusters {
		idx := BinsToHits(img, hm, bins)
		if len(idx) == 0 {
			continue
		}
		members := make([]*models.Hit, len(idx))
		for i, j := range idx {
			members[i] = hits[j]
		}
		out = append(out, models.HitCluster{
			ID:   uuid.New(),
			Key:  key,
			Hits: members,
		})
	}
	return out
}
