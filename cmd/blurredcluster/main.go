package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"blurredcluster/pkg/config"
	"blurredcluster/pkg/hitio"
	"blurredcluster/pkg/pipeline"
	"blurredcluster/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "blurredcluster.yaml", "YAML configuration file (defaults are used if missing)")
	hitsPath := flag.String("hits", "", "YAML file with the hits of one event")
	outputPath := flag.String("output", "clusters.yaml", "Output cluster file")
	numCores := flag.Int("cores", 0, "Number of planes processed in parallel (default: from config)")
	useFFT := flag.Bool("fft", false, "Use FFT convolution instead of the direct kernel sum")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save debug images of every processing stage")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory for debug images (default: from config)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	quiet := flag.Bool("quiet", false, "Suppress per-plane progress messages")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *hitsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *useFFT {
		cfg.Blur.Method = config.MethodFFT
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if *intermediaryDir != "" {
		cfg.Output.IntermediaryDir = *intermediaryDir
	}
	if *quiet {
		cfg.Output.Verbose = false
	}

	fmt.Println("================================")
	fmt.Println("BLURRED CLUSTERING OF WIRE HITS")
	fmt.Println("================================")

	event, hits, err := hitio.LoadHits(*hitsPath)
	if err != nil {
		log.Fatalf("Failed to load hits: %v", err)
	}
	fmt.Printf("Loaded %d hits of event %d from %s\n", len(hits), event, *hitsPath)

	var opts []pipeline.Option
	var viewer *visualization.Viewer
	if cfg.Output.SaveIntermediaryResults {
		viewer = visualization.NewViewer(cfg.Output.IntermediaryDir, log.Default())
		opts = append(opts, pipeline.WithObserver(viewer))
	}

	p, err := pipeline.NewFromConfig(cfg, opts...)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	kp := p.KernelParams()
	fmt.Printf("Blur kernel: %d wires x %d ticks, sigma %.2f x %.2f (%s)\n",
		kp.BlurWire, kp.BlurTick, kp.Sigma, kp.TickSigma(), cfg.Blur.Method)

	startTime := time.Now()
	clusters, err := p.ProcessEvent(hits)
	if err != nil {
		log.Fatalf("Clustering failed: %v", err)
	}
	processingTime := time.Since(startTime)

	if err := hitio.SaveClusters(*outputPath, event, clusters, hits); err != nil {
		log.Fatalf("Failed to save clusters: %v", err)
	}

	metrics := p.GetMetrics()
	fmt.Printf("\nClustering completed in %.3f seconds\n", processingTime.Seconds())
	fmt.Printf("Clusters saved to: %s\n\n", *outputPath)

	fmt.Println("Per-plane summary:")
	fmt.Println("==================")
	for _, pm := range metrics.Planes {
		fmt.Printf("%-14s hits %6d  image %5dx%-6d raw %4d  merged %4d  clusters %4d  unclustered %6d\n",
			pm.Key, pm.Hits, pm.ImageWires, pm.ImageTicks,
			pm.RawClusters, pm.MergedClusters, pm.HitClusters, pm.UnclusteredHits())
	}

	fmt.Printf("\nTotal clusters: %d\n", metrics.Clusters)
	fmt.Printf("Mean cluster size: %.2f hits (std dev %.2f)\n", metrics.MeanClusterSize, metrics.StdDevClusterSize)
	fmt.Printf("Clustered hits: %.1f%%\n", metrics.ClusteredFraction*100)

	if viewer != nil {
		fmt.Printf("\nIntermediary results saved to: %s\n", cfg.Output.IntermediaryDir)
		fmt.Printf("%d images written", len(viewer.Files()))
		if n := viewer.Errors(); n > 0 {
			fmt.Printf(", %d failed", n)
		}
		fmt.Println()
		fmt.Println("Per plane, the following stages were saved:")
		for _, s := range []pipeline.Stage{pipeline.StageHits, pipeline.StageBlurred, pipeline.StageExtracted, pipeline.StageMerged} {
			fmt.Printf("- %s\n", s)
		}
	}
}
