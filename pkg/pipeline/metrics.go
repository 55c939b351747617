package pipeline

import (
	"gonum.org/v1/gonum/stat"

	"blurredcluster/internal/models"
)

// PlaneMetrics summarises the processing of one plane
type PlaneMetrics struct {
	Key models.PlaneKey

	// Hits is the number of input hits
	Hits int

	// ImageWires and ImageTicks are the dimensions of the charge image
	ImageWires int
	ImageTicks int

	// InputCharge is the summed charge of the raw image, BlurredCharge that
	// of the blurred image. They agree unless charge was spread off the edge.
	InputCharge   float64
	BlurredCharge float64

	// QualifyingBins counts blurred bins above the seed threshold
	QualifyingBins int

	// RawClusters and MergedClusters count bin clusters before and after merging
	RawClusters    int
	MergedClusters int

	// HitClusters counts the clusters returned for the plane
	HitClusters int

	// ClusteredHits counts hits that ended up in a returned cluster
	ClusteredHits int
}

// UnclusteredHits returns the number of hits left out of every cluster
func (m PlaneMetrics) UnclusteredHits() int {
	return m.Hits - m.ClusteredHits
}

// Metrics summarises one event
type Metrics struct {
	Planes []PlaneMetrics

	// Clusters is the total number of hit clusters
	Clusters int

	// MeanClusterSize and StdDevClusterSize describe the hits per cluster
	MeanClusterSize   float64
	StdDevClusterSize float64

	// ClusteredFraction is the share of all hits that were clustered
	ClusteredFraction float64
}

// calculateMetrics builds event metrics from per-plane results
func calculateMetrics(planes []PlaneMetrics, clusters []models.HitCluster) Metrics {
	m := Metrics{
		Planes:   planes,
		Clusters: len(clusters),
	}

	sizes := make([]float64, len(clusters))
	for i, c := range clusters {
		sizes[i] = float64(len(c.Hits))
	}
	if len(sizes) > 0 {
		m.MeanClusterSize = stat.Mean(sizes, nil)
	}
	if len(sizes) > 1 {
		m.StdDevClusterSize = stat.StdDev(sizes, nil)
	}

	var hits, clustered int
	for _, p := range planes {
		hits += p.Hits
		clustered += p.ClusteredHits
	}
	if hits > 0 {
		m.ClusteredFraction = float64(clustered) / float64(hits)
	}

	return m
}
