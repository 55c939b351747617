// Package visualization writes debug images of the intermediate clustering
// results: gray charge maps of the raw and blurred images and heat map plots
// with the clusters overlaid.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"blurredcluster/internal/models"
	"blurredcluster/pkg/hitimage"
	"blurredcluster/pkg/pipeline"
)

// Viewer saves pipeline snapshots below a directory, one sub-directory per
// plane. It implements pipeline.Observer and may be shared by all plane
// workers; writes are serialised.
type Viewer struct {
	outputDir string
	logger    *log.Logger

	// plot size of the cluster overlays
	width  vg.Length
	height vg.Length

	mu    sync.Mutex
	files []string
	errs  int
}

// NewViewer creates a viewer writing below outputDir
func NewViewer(outputDir string, logger *log.Logger) *Viewer {
	if logger == nil {
		logger = log.Default()
	}
	return &Viewer{
		outputDir: outputDir,
		logger:    logger,
		width:     10 * vg.Inch,
		height:    6 * vg.Inch,
	}
}

// ToGray converts a charge image to a 16-bit gray image, normalised so the
// densest bin is white. Wires run along x and ticks along y.
func ToGray(img *hitimage.Image) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, img.Wires, img.Ticks))

	maxVal := img.Max()
	if maxVal <= 0 {
		return out
	}
	for x := 0; x < img.Wires; x++ {
		for y := 0; y < img.Ticks; y++ {
			value := uint16(math.Max(0, math.Min(65535, img.At(x, y)/maxVal*65535)))
			out.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return out
}

// SaveImage writes an image as PNG
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// imageGrid adapts an Image to plotter.GridXYZ in global coordinates
type imageGrid struct {
	img *hitimage.Image
}

func (g imageGrid) Dims() (c, r int)   { return g.img.Wires, g.img.Ticks }
func (g imageGrid) Z(c, r int) float64 { return g.img.At(c, r) }
func (g imageGrid) X(c int) float64    { return float64(c + g.img.LowerWire) }
func (g imageGrid) Y(r int) float64    { return float64(r + g.img.LowerTick) }

// PlotClusters draws the image as a heat map with one marker series per
// cluster on top.
func PlotClusters(img *hitimage.Image, clusters []hitimage.BinCluster, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Wire"
	p.Y.Label.Text = "Tick"

	// The heat map needs a value range and at least one bin
	if !img.Empty() && img.Max() > 0 {
		hm := plotter.NewHeatMap(imageGrid{img: img}, palette.Heat(32, 1))
		if hm.Min >= hm.Max {
			hm.Min = 0
		}
		p.Add(hm)
	}

	for i, c := range clusters {
		if len(c) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(c))
		for j, bin := range c {
			wire, tick := img.WireTick(bin)
			pts[j] = plotter.XY{X: float64(wire), Y: float64(tick)}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "cluster %d", i)
		}
		sc.GlyphStyle = draw.GlyphStyle{
			Color:  plotutil.Color(i),
			Shape:  plotutil.Shape(i),
			Radius: vg.Points(1.5),
		}
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("cluster %d (%d bins)", i, len(c)), sc)
	}
	p.Legend.Top = true

	return p, nil
}

// ObserveImage saves the image as a gray PNG
func (v *Viewer) ObserveImage(key models.PlaneKey, stage pipeline.Stage, img *hitimage.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()

	filename, err := v.prepare(key, stage)
	if err == nil {
		err = SaveImage(ToGray(img), filename)
	}
	v.record(filename, err)
}

// ObserveClusters saves a heat map plot with the clusters overlaid
func (v *Viewer) ObserveClusters(key models.PlaneKey, stage pipeline.Stage, img *hitimage.Image, clusters []hitimage.BinCluster) {
	v.mu.Lock()
	defer v.mu.Unlock()

	filename, err := v.prepare(key, stage)
	if err == nil {
		var p *plot.Plot
		p, err = PlotClusters(img, clusters, fmt.Sprintf("%s %s: %d clusters", key, stage, len(clusters)))
		if err == nil {
			err = p.Save(v.width, v.height, filename)
		}
	}
	v.record(filename, err)
}

// Files returns the files written so far, sorted
func (v *Viewer) Files() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	files := append([]string(nil), v.files...)
	sort.Strings(files)
	return files
}

// Errors returns the number of snapshots that could not be written
func (v *Viewer) Errors() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errs
}

func (v *Viewer) prepare(key models.PlaneKey, stage pipeline.Stage) (string, error) {
	dir := filepath.Join(v.outputDir, key.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create snapshot directory")
	}
	return filepath.Join(dir, stage.String()+".png"), nil
}

// record notes a written file. Snapshot failures are logged, not returned,
// so a full disk never aborts clustering. Callers hold v.mu.
func (v *Viewer) record(filename string, err error) {
	if err != nil {
		v.errs++
		v.logger.Printf("Warning: failed to save snapshot %s: %v", filename, err)
		return
	}
	v.files = append(v.files, filename)
}
