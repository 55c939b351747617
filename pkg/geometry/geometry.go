// Package geometry provides the wire-flattening and detector timing lookups the
// clustering pipeline needs from the outside world.
package geometry

import (
	"github.com/pkg/errors"

	"blurredcluster/internal/models"
)

// ErrUnknownWire is returned when a wire identifier lies outside the geometry
var ErrUnknownWire = errors.New("wire not in geometry")

// ErrInvalidGeometry is returned when a layout or detector description is unusable
var ErrInvalidGeometry = errors.New("invalid geometry")

// Geometry maps a hierarchical wire identifier onto a single global wire axis.
// Implementations must be deterministic and injective over the wires they accept.
type Geometry interface {
	GlobalWire(id models.WireID) (int, error)
}

// Layout is a regular detector: every TPC has the same number of planes and
// every plane the same number of wires.
//
// The global wire axis places all TPCs of the same plane side by side, so
// wires of neighbouring TPCs that read out the same view stay adjacent in
// the image:
//
//	global = (plane*NumTPCs + tpc)*WiresPerPlane + wire
type Layout struct {
	NumTPCs       int
	PlanesPerTPC  int
	WiresPerPlane int

	// WirePitch is the distance between neighbouring wires in cm
	WirePitch float64
}

// Validate checks that the layout describes at least one wire
func (l Layout) Validate() error {
	if l.NumTPCs <= 0 || l.PlanesPerTPC <= 0 || l.WiresPerPlane <= 0 {
		return errors.Wrapf(ErrInvalidGeometry, "layout %d TPCs x %d planes x %d wires",
			l.NumTPCs, l.PlanesPerTPC, l.WiresPerPlane)
	}
	if l.WirePitch <= 0 {
		return errors.Wrapf(ErrInvalidGeometry, "wire pitch %g must be positive", l.WirePitch)
	}
	return nil
}

// GlobalWire implements Geometry
func (l Layout) GlobalWire(id models.WireID) (int, error) {
	if id.TPC < 0 || id.TPC >= l.NumTPCs ||
		id.Plane < 0 || id.Plane >= l.PlanesPerTPC ||
		id.Wire < 0 || id.Wire >= l.WiresPerPlane {
		return 0, errors.Wrapf(ErrUnknownWire, "%s", id)
	}
	return (id.Plane*l.NumTPCs+id.TPC)*l.WiresPerPlane + id.Wire, nil
}

// GeometryFunc adapts a plain function to the Geometry interface
type GeometryFunc func(id models.WireID) (int, error)

// GlobalWire implements Geometry
func (f GeometryFunc) GlobalWire(id models.WireID) (int, error) {
	return f(id)
}

// Detector holds the readout timing needed to relate ticks to distance
type Detector struct {
	// SamplingRate is the tick period in ns
	SamplingRate float64

	// DriftVelocity is the electron drift velocity in cm/us
	DriftVelocity float64
}

// Validate checks that both timing values are positive
func (d Detector) Validate() error {
	if d.SamplingRate <= 0 || d.DriftVelocity <= 0 {
		return errors.Wrapf(ErrInvalidGeometry, "sampling rate %g ns, drift velocity %g cm/us",
			d.SamplingRate, d.DriftVelocity)
	}
	return nil
}

// TickLength returns the drift distance covered in one tick, in cm
func (d Detector) TickLength() float64 {
	return d.DriftVelocity * d.SamplingRate * 1e-3
}
