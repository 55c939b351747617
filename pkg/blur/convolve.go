package blur

import (
	"blurredcluster/pkg/hitimage"
)

// Convolve smooths img with k and returns a new image of the same shape.
//
// Each output bin is the kernel-weighted sum of the input bins around it;
// reads outside the image count as zero.
func Convolve(img *hitimage.Image, k *Kernel) *hitimage.Image {
	out := hitimage.NewImage(img.Wires, img.Ticks, img.LowerWire, img.LowerTick)
	if img.Empty() {
		return out
	}

	rw, rt := k.Params.BlurWire, k.Params.BlurTick
	for x := 0; x < img.Wires; x++ {
		i0 := max(0, rw-x)
		i1 := min(k.Wires, img.Wires-x+rw)
		for y := 0; y < img.Ticks; y++ {
			j0 := max(0, rt-y)
			j1 := min(k.Ticks, img.Ticks-y+rt)

			var sum float64
			for i := i0; i < i1; i++ {
				row := (x + i - rw) * img.Ticks
				krow := i * k.Ticks
				for j := j0; j < j1; j++ {
					sum += img.Data[row+y+j-rt] * k.Data[krow+j]
				}
			}
			out.Data[x*img.Ticks+y] = sum
		}
	}

	return out
}
