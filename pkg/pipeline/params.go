package pipeline

import (
	"blurredcluster/pkg/blur"
	"blurredcluster/pkg/clustering"
	"blurredcluster/pkg/config"
)

// ParamsFromConfig builds pipeline parameters from a loaded configuration
func ParamsFromConfig(cfg *config.Config) *Params {
	return &Params{
		Kernel: blur.KernelParams{
			BlurWire:  cfg.Blur.Wire,
			BlurTick:  cfg.Blur.Tick,
			Sigma:     cfg.Blur.Sigma,
			SigmaTick: cfg.Blur.SigmaTick,
		},
		ScaleTickByDrift: cfg.Blur.ScaleTickByDrift,
		UseFFT:           cfg.Blur.Method == config.MethodFFT,
		Extract: clustering.ExtractParams{
			MinSeed:             cfg.Cluster.MinSeed,
			WireDistance:        cfg.Cluster.WireDistance,
			TickDistance:        cfg.Cluster.TickDistance,
			NeighboursThreshold: cfg.Cluster.NeighboursThreshold,
			MinNeighbours:       cfg.Cluster.MinNeighbours,
			MinSize:             cfg.Cluster.MinSize,
		},
		Merge: clustering.MergeParams{
			Enabled:         cfg.Merge.Enabled,
			MinClusterSize:  cfg.Merge.MinClusterSize,
			Threshold:       cfg.Merge.Threshold,
			WeightByDensity: cfg.Merge.WeightByDensity,
		},
		NumCores: cfg.Processing.NumCores,
		Verbose:  cfg.Output.Verbose,
	}
}

// NewFromConfig validates cfg and creates a pipeline on its detector layout
func NewFromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{WithDetector(cfg.Detector(), cfg.Geometry.WirePitch)}, opts...)
	return NewPipeline(ParamsFromConfig(cfg), cfg.Layout(), opts...)
}
