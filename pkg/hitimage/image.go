// Package hitimage turns a set of wire hits into a dense wire x tick charge
// image and maps image bins back to the hits that produced them.
package hitimage

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Image is a dense 2D charge density grid.
//
// Data is stored wire-major: bin = wireLocal*Ticks + tickLocal. LowerWire and
// LowerTick give the global (wire, tick) coordinate of local bin (0, 0).
type Image struct {
	Data []float64

	// Wires and Ticks are the grid dimensions
	Wires int
	Ticks int

	// LowerWire and LowerTick are the global coordinates of the first bin
	LowerWire int
	LowerTick int
}

// BinCluster is an ordered list of unique bin indices into an Image
type BinCluster []int

// NewImage creates an empty image with the given dimensions and origin
func NewImage(wires, ticks, lowerWire, lowerTick int) *Image {
	if wires < 0 {
		wires = 0
	}
	if ticks < 0 {
		ticks = 0
	}
	return &Image{
		Data:      make([]float64, wires*ticks),
		Wires:     wires,
		Ticks:     ticks,
		LowerWire: lowerWire,
		LowerTick: lowerTick,
	}
}

// NumBins returns the number of bins in the image
func (img *Image) NumBins() int {
	return len(img.Data)
}

// Empty reports whether the image has no bins
func (img *Image) Empty() bool {
	return len(img.Data) == 0
}

// Bin converts a global (wire, tick) coordinate into a bin index.
// The second return value is false if the coordinate lies outside the image.
func (img *Image) Bin(wire, tick int) (int, bool) {
	x := wire - img.LowerWire
	y := tick - img.LowerTick
	if !img.Contains(x, y) {
		return 0, false
	}
	return x*img.Ticks + y, true
}

// LocalBin converts a local (wire, tick) index into a bin index without bounds checks
func (img *Image) LocalBin(x, y int) int {
	return x*img.Ticks + y
}

// Local returns the local (wire, tick) indices of a bin
func (img *Image) Local(bin int) (x, y int) {
	return bin / img.Ticks, bin % img.Ticks
}

// WireTick converts a bin index into its global (wire, tick) coordinate
func (img *Image) WireTick(bin int) (wire, tick int) {
	x, y := img.Local(bin)
	return x + img.LowerWire, y + img.LowerTick
}

// Contains reports whether the local indices lie inside the image
func (img *Image) Contains(x, y int) bool {
	return x >= 0 && x < img.Wires && y >= 0 && y < img.Ticks
}

// Value returns the density at a bin
func (img *Image) Value(bin int) float64 {
	return img.Data[bin]
}

// At returns the density at local indices, or zero outside the image
func (img *Image) At(x, y int) float64 {
	if !img.Contains(x, y) {
		return 0
	}
	return img.Data[x*img.Ticks+y]
}

// Add accumulates charge at a global (wire, tick) coordinate
func (img *Image) Add(wire, tick int, charge float64) error {
	bin, ok := img.Bin(wire, tick)
	if !ok {
		return errors.Errorf("wire %d tick %d outside image", wire, tick)
	}
	img.Data[bin] += charge
	return nil
}

// ChargeOfBin returns the density of a bin, rounded to the nearest integer
// charge unit as used for display and summaries.
func (img *Image) ChargeOfBin(bin int) int {
	return int(math.Round(img.Data[bin]))
}

// TimeOfBin returns the tick coordinate of a bin as a time value
func (img *Image) TimeOfBin(bin int) float64 {
	_, tick := img.WireTick(bin)
	return float64(tick)
}

// Sum returns the total density in the image
func (img *Image) Sum() float64 {
	if img.Empty() {
		return 0
	}
	return floats.Sum(img.Data)
}

// Max returns the largest density in the image, or zero for an empty image
func (img *Image) Max() float64 {
	if img.Empty() {
		return 0
	}
	return floats.Max(img.Data)
}

// SameShape reports whether two images cover the same grid
func (img *Image) SameShape(o *Image) bool {
	return img.Wires == o.Wires && img.Ticks == o.Ticks &&
		img.LowerWire == o.LowerWire && img.LowerTick == o.LowerTick
}

// Clone returns a deep copy of the image
func (img *Image) Clone() *Image {
	out := NewImage(img.Wires, img.Ticks, img.LowerWire, img.LowerTick)
	copy(out.Data, img.Data)
	return out
}
