package blur

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"blurredcluster/pkg/hitimage"
)

// fftZeroTolerance is the magnitude, relative to the densest input bin, below
// which an FFT output bin is taken to be zero
const fftZeroTolerance = 1e-12

// ConvolveFFT computes the same result as Convolve through the frequency
// domain. It pays off for wide kernels, where the direct method's cost grows
// with the kernel area.
//
// Image and kernel are zero padded to (Wires+2*BlurWire) x (Ticks+2*BlurTick)
// so the circular convolution of the transforms equals the linear one.
func ConvolveFFT(img *hitimage.Image, k *Kernel) *hitimage.Image {
	out := hitimage.NewImage(img.Wires, img.Ticks, img.LowerWire, img.LowerTick)
	if img.Empty() {
		return out
	}

	rw, rt := k.Params.BlurWire, k.Params.BlurTick
	rows := img.Wires + 2*rw
	cols := img.Ticks + 2*rt

	a := make([]complex128, rows*cols)
	for x := 0; x < img.Wires; x++ {
		for y := 0; y < img.Ticks; y++ {
			a[x*cols+y] = complex(img.Data[x*img.Ticks+y], 0)
		}
	}

	// The kernel is stored flipped so the product computes a correlation,
	// matching Convolve for asymmetric kernels as well.
	b := make([]complex128, rows*cols)
	for i := 0; i < k.Wires; i++ {
		for j := 0; j < k.Ticks; j++ {
			b[(k.Wires-1-i)*cols+(k.Ticks-1-j)] = complex(k.Data[i*k.Ticks+j], 0)
		}
	}

	fft2D(a, rows, cols, false)
	fft2D(b, rows, cols, false)
	for i := range a {
		a[i] *= b[i]
	}
	fft2D(a, rows, cols, true)

	// The transforms are unnormalised; undo the rows*cols gain here.
	// Bins outside every kernel footprint come back as round-off of either
	// sign and are cleared so they match the direct sum exactly.
	scale := 1 / float64(rows*cols)
	tol := fftZeroTolerance * img.Max()
	for x := 0; x < img.Wires; x++ {
		for y := 0; y < img.Ticks; y++ {
			v := real(a[(x+rw)*cols+y+rt]) * scale
			if math.Abs(v) <= tol {
				v = 0
			}
			out.Data[x*img.Ticks+y] = v
		}
	}

	return out
}

// fft2D performs an in-place 2D FFT on row-major data, rows first, then columns.
// With inverse set it computes the unnormalised inverse transform.
func fft2D(data []complex128, rows, cols int, inverse bool) {
	rowFFT := fourier.NewCmplxFFT(cols)
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		if inverse {
			rowFFT.Sequence(row, row)
		} else {
			rowFFT.Coefficients(row, row)
		}
	}

	colFFT := fourier.NewCmplxFFT(rows)
	col := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = data[r*cols+c]
		}
		if inverse {
			colFFT.Sequence(col, col)
		} else {
			colFFT.Coefficients(col, col)
		}
		for r := 0; r < rows; r++ {
			data[r*cols+c] = col[r]
		}
	}
}
