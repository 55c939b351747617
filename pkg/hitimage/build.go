package hitimage

import (
	"math"

	"github.com/pkg/errors"

	"blurredcluster/internal/models"
	"blurredcluster/pkg/geometry"
)

// Build rasterises hits into a charge image and a lookup from (wire, tick)
// back to the hits.
//
// The image covers the bounding box of the hits, widened by marginWire and
// marginTick on each side so that a kernel of those radii sees the same zero
// padding at the edges as in the interior. Charges landing in the same bin are
// summed. The returned HitMap stores indices into hits.
//
// An empty hit list yields an empty image and map.
func Build(hits []*models.Hit, geom geometry.Geometry, marginWire, marginTick int) (*Image, *HitMap, error) {
	if marginWire < 0 || marginTick < 0 {
		return nil, nil, errors.Errorf("negative image margin (%d, %d)", marginWire, marginTick)
	}

	hm := NewHitMap()
	if len(hits) == 0 {
		return NewImage(0, 0, 0, 0), hm, nil
	}

	wires := make([]int, len(hits))
	minWire, maxWire := math.MaxInt, math.MinInt
	minTick, maxTick := math.MaxInt, math.MinInt
	for i, hit := range hits {
		if hit == nil {
			return nil, nil, errors.Errorf("hit %d is nil", i)
		}
		w, err := geom.GlobalWire(hit.WireID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "hit %d", i)
		}
		wires[i] = w
		tick := hit.Tick()

		minWire = min(minWire, w)
		maxWire = max(maxWire, w)
		minTick = min(minTick, tick)
		maxTick = max(maxTick, tick)
	}

	img := NewImage(
		maxWire-minWire+1+2*marginWire,
		maxTick-minTick+1+2*marginTick,
		minWire-marginWire,
		minTick-marginTick,
	)

	for i, hit := range hits {
		tick := hit.Tick()
		bin, _ := img.Bin(wires[i], tick)
		img.Data[bin] += hit.Integral
		hm.Set(wires[i], tick, i)
	}

	return img, hm, nil
}
