package pipeline

import (
	"blurredcluster/internal/models"
	"blurredcluster/pkg/hitimage"
)

// Stage names a point in the per-plane processing chain
type Stage int

const (
	// StageHits is the raw charge image built from the hits
	StageHits Stage = iota
	// StageBlurred is the image after convolution with the kernel
	StageBlurred
	// StageExtracted is the set of clusters found on the blurred image
	StageExtracted
	// StageMerged is the cluster set after collinear fragments were joined
	StageMerged
)

// String returns the stage name used in logs and file names
func (s Stage) String() string {
	switch s {
	case StageHits:
		return "01_hits"
	case StageBlurred:
		return "02_blurred"
	case StageExtracted:
		return "03_extracted"
	case StageMerged:
		return "04_merged"
	default:
		return "unknown"
	}
}

// Observer receives snapshots of intermediate results, for debugging.
// Images and clusters passed in are copies owned by the observer.
// Observers may be called from several plane workers at once.
type Observer interface {
	ObserveImage(key models.PlaneKey, stage Stage, img *hitimage.Image)
	ObserveClusters(key models.PlaneKey, stage Stage, img *hitimage.Image, clusters []hitimage.BinCluster)
}

// NopObserver ignores everything
type NopObserver struct{}

// ObserveImage implements Observer
func (NopObserver) ObserveImage(models.PlaneKey, Stage, *hitimage.Image) {}

// ObserveClusters implements Observer
func (NopObserver) ObserveClusters(models.PlaneKey, Stage, *hitimage.Image, []hitimage.BinCluster) {}

func cloneClusters(clusters []hitimage.BinCluster) []hitimage.BinCluster {
	out := make([]hitimage.BinCluster, len(clusters))
	for i, c := range clusters {
		out[i] = append(hitimage.BinCluster(nil), c...)
	}
	return out
}
