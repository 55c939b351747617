package models

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// WireID identifies a single readout wire
type WireID struct {
	// TPC is the detector sub-volume the wire belongs to
	TPC int

	// Plane is the readout plane within the TPC
	Plane int

	// Wire is the wire number within the plane
	Wire int
}

// String returns a compact human readable form of the wire identifier
func (w WireID) String() string {
	return fmt.Sprintf("T%d:P%d:W%d", w.TPC, w.Plane, w.Wire)
}

// Hit represents a single charge measurement on a wire.
// Hits are owned by the caller; the clustering code only keeps pointers
// into the caller's slice and never modifies them.
type Hit struct {
	// WireID is the wire the charge was collected on
	WireID WireID

	// PeakTime is the time of the pulse peak in ticks
	PeakTime float64

	// Integral is the collected charge
	Integral float64
}

// Tick returns the discretised time sample of the hit peak
func (h *Hit) Tick() int {
	return int(math.Floor(h.PeakTime))
}

// Key returns the plane the hit belongs to
func (h *Hit) Key() PlaneKey {
	return PlaneKey{TPC: h.WireID.TPC, Plane: h.WireID.Plane}
}

// PlaneKey identifies one readout plane in one TPC. Each plane is imaged
// and clustered independently.
type PlaneKey struct {
	TPC   int
	Plane int
}

// Less orders plane keys by TPC, then plane
func (k PlaneKey) Less(o PlaneKey) bool {
	if k.TPC != o.TPC {
		return k.TPC < o.TPC
	}
	return k.Plane < o.Plane
}

// String returns a compact human readable form of the plane key
func (k PlaneKey) String() string {
	return fmt.Sprintf("tpc%d_plane%d", k.TPC, k.Plane)
}

// HitCluster is a group of hits judged to belong to the same trajectory
// segment on one plane. Hits points into the caller's hit slice.
type HitCluster struct {
	// ID uniquely identifies the cluster within a run
	ID uuid.UUID

	// Key is the plane the cluster was found on
	Key PlaneKey

	// Hits are the member hits, shared with the input collection
	Hits []*Hit
}

// Charge returns the summed charge of all member hits
func (c *HitCluster) Charge() float64 {
	var total float64
	for _, h := range c.Hits {
		total += h.Integral
	}
	return total
}
