package blur

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"blurredcluster/pkg/hitimage"
)

func TestKernelNormalisation(t *testing.T) {
	for _, p := range []KernelParams{
		{BlurWire: 0, BlurTick: 0, Sigma: 1},
		{BlurWire: 1, BlurTick: 1, Sigma: 1},
		{BlurWire: 2, BlurTick: 5, Sigma: 0.3},
		{BlurWire: 6, BlurTick: 12, Sigma: 6},
		{BlurWire: 3, BlurTick: 1, Sigma: 100},
	} {
		k, err := NewGaussianKernel(p)
		require.NoError(t, err)

		assert.Equal(t, 2*p.BlurWire+1, k.Wires)
		assert.Equal(t, 2*p.BlurTick+1, k.Ticks)
		assert.InDeltaf(t, 1.0, floats.Sum(k.Data), 1e-12, "kernel %+v not normalised", p)

		// peak at the centre, symmetric about it
		centre := k.At(0, 0)
		assert.Equal(t, centre, floats.Max(k.Data))
		for dw := -p.BlurWire; dw <= p.BlurWire; dw++ {
			for dt := -p.BlurTick; dt <= p.BlurTick; dt++ {
				assert.InDelta(t, k.At(dw, dt), k.At(-dw, -dt), 1e-15)
			}
		}
	}
}

func TestKernelValues(t *testing.T) {
	k, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 1, Sigma: 1})
	require.NoError(t, err)

	norm := 1 + 4*math.Exp(-0.5) + 4*math.Exp(-1)
	assert.InDelta(t, 1/norm, k.At(0, 0), 1e-12)
	assert.InDelta(t, math.Exp(-0.5)/norm, k.At(1, 0), 1e-12)
	assert.InDelta(t, math.Exp(-1)/norm, k.At(-1, 1), 1e-12)
}

func TestKernelAnisotropic(t *testing.T) {
	k, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 3, Sigma: 1, SigmaTick: 3})
	require.NoError(t, err)

	assert.InDelta(t, k.At(1, 0), k.At(0, 3), 1e-15)
	assert.InDelta(t, math.Exp(-0.5), k.At(0, 3)/k.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, floats.Sum(k.Data), 1e-12)

	// zero tick width falls back to Sigma
	iso, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 1, Sigma: 1})
	require.NoError(t, err)
	same, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 1, Sigma: 1, SigmaTick: 1})
	require.NoError(t, err)
	assert.Equal(t, iso.Data, same.Data)
}

func TestKernelInvalidParams(t *testing.T) {
	for _, p := range []KernelParams{
		{BlurWire: -1, BlurTick: 1, Sigma: 1},
		{BlurWire: 1, BlurTick: -2, Sigma: 1},
		{BlurWire: 1, BlurTick: 1, Sigma: 0},
		{BlurWire: 1, BlurTick: 1, Sigma: -3},
		{BlurWire: 1, BlurTick: 1, Sigma: math.NaN()},
		{BlurWire: 1, BlurTick: 1, Sigma: math.Inf(1)},
		{BlurWire: 1, BlurTick: 1, Sigma: 1, SigmaTick: -1},
		{BlurWire: 1, BlurTick: 1, Sigma: 1, SigmaTick: math.NaN()},
	} {
		_, err := NewGaussianKernel(p)
		assert.Truef(t, errors.Is(err, ErrInvalidKernel), "expected ErrInvalidKernel for %+v, got %v", p, err)

		_, err = NewKernelCache().Get(p)
		assert.Error(t, err)
	}
}

func TestKernelCache(t *testing.T) {
	cache := NewKernelCache()
	p := KernelParams{BlurWire: 2, BlurTick: 3, Sigma: 1.5}

	k1, err := cache.Get(p)
	require.NoError(t, err)
	k2, err := cache.Get(p)
	require.NoError(t, err)

	assert.Same(t, k1, k2, "identical parameters should reuse the cached kernel")
	assert.Equal(t, 1, cache.Regenerations())

	fresh, err := NewGaussianKernel(p)
	require.NoError(t, err)
	assert.Equal(t, fresh.Data, k1.Data, "cached kernel must match a fresh build bit for bit")

	// any parameter change forces a rebuild
	for _, q := range []KernelParams{
		{BlurWire: 3, BlurTick: 3, Sigma: 1.5},
		{BlurWire: 3, BlurTick: 4, Sigma: 1.5},
		{BlurWire: 3, BlurTick: 4, Sigma: 2},
		{BlurWire: 3, BlurTick: 4, Sigma: 2, SigmaTick: 5},
	} {
		k, err := cache.Get(q)
		require.NoError(t, err)
		assert.Equal(t, q, k.Params)
	}
	assert.Equal(t, 5, cache.Regenerations())

	// switching back rebuilds an identical kernel
	k3, err := cache.Get(p)
	require.NoError(t, err)
	assert.NotSame(t, k1, k3)
	assert.Equal(t, k1.Data, k3.Data)
	assert.Equal(t, 6, cache.Regenerations())

	cache.Invalidate()
	_, err = cache.Get(p)
	require.NoError(t, err)
	assert.Equal(t, 7, cache.Regenerations())
}

func TestKernelCacheConcurrent(t *testing.T) {
	cache := NewKernelCache()
	p := KernelParams{BlurWire: 4, BlurTick: 4, Sigma: 2}

	done := make(chan *Kernel)
	for i := 0; i < 8; i++ {
		go func() {
			k, err := cache.Get(p)
			if err != nil {
				done <- nil
				return
			}
			done <- k
		}()
	}

	var first *Kernel
	for i := 0; i < 8; i++ {
		k := <-done
		require.NotNil(t, k)
		if first == nil {
			first = k
		}
		assert.Same(t, first, k)
	}
	assert.Equal(t, 1, cache.Regenerations())
}

// pointImage places charges at local coordinates of an otherwise empty image
func pointImage(wires, ticks int, points map[[2]int]float64) *hitimage.Image {
	img := hitimage.NewImage(wires, ticks, 0, 0)
	for p, v := range points {
		img.Data[img.LocalBin(p[0], p[1])] = v
	}
	return img
}

func TestConvolveChargeConservation(t *testing.T) {
	img := pointImage(30, 40, map[[2]int]float64{
		{10, 15}: 50,
		{11, 15}: 20,
		{15, 25}: 7.5,
	})
	k, err := NewGaussianKernel(KernelParams{BlurWire: 3, BlurTick: 4, Sigma: 2})
	require.NoError(t, err)

	out := Convolve(img, k)
	assert.True(t, out.SameShape(img))
	assert.InDelta(t, img.Sum(), out.Sum(), 1e-9)
}

func TestConvolvePointSpread(t *testing.T) {
	img := pointImage(9, 9, map[[2]int]float64{{4, 4}: 10})
	k, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 2, Sigma: 1})
	require.NoError(t, err)

	out := Convolve(img, k)
	for dw := -1; dw <= 1; dw++ {
		for dt := -2; dt <= 2; dt++ {
			assert.InDelta(t, 10*k.At(dw, dt), out.At(4+dw, 4+dt), 1e-12)
		}
	}
	assert.Zero(t, out.At(2, 4))
	assert.Zero(t, out.At(4, 1))
}

func TestConvolveEdgeClampsToZero(t *testing.T) {
	img := pointImage(3, 3, map[[2]int]float64{{0, 0}: 1})
	k, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 1, Sigma: 1})
	require.NoError(t, err)

	out := Convolve(img, k)
	// charge spread past the border is lost
	assert.InDelta(t, k.At(0, 0)+2*k.At(1, 0)+k.At(1, 1), out.Sum(), 1e-12)
}

func TestConvolveIdentityKernel(t *testing.T) {
	img := pointImage(4, 5, map[[2]int]float64{{1, 1}: 3, {2, 4}: 8})
	k, err := NewGaussianKernel(KernelParams{BlurWire: 0, BlurTick: 0, Sigma: 1})
	require.NoError(t, err)

	assert.Equal(t, img.Data, Convolve(img, k).Data)
}

func TestConvolveFFTMatchesDirect(t *testing.T) {
	img := hitimage.NewImage(17, 23, 100, 4000)
	for i := range img.Data {
		img.Data[i] = float64((i*7919)%13) / 3
	}

	for _, p := range []KernelParams{
		{BlurWire: 1, BlurTick: 1, Sigma: 1},
		{BlurWire: 2, BlurTick: 5, Sigma: 1.7},
		{BlurWire: 0, BlurTick: 3, Sigma: 2},
	} {
		k, err := NewGaussianKernel(p)
		require.NoError(t, err)

		direct := Convolve(img, k)
		viaFFT := ConvolveFFT(img, k)
		require.True(t, viaFFT.SameShape(direct))
		for i := range direct.Data {
			assert.InDeltaf(t, direct.Data[i], viaFFT.Data[i], 1e-9, "bin %d, kernel %+v", i, p)
		}
	}
}

func TestConvolveFFTAsymmetricKernel(t *testing.T) {
	img := pointImage(6, 7, map[[2]int]float64{{2, 3}: 1, {4, 1}: 2})
	k := &Kernel{
		Params: KernelParams{BlurWire: 1, BlurTick: 1, Sigma: 1},
		Wires:  3,
		Ticks:  3,
		Data:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9},
	}

	direct := Convolve(img, k)
	viaFFT := ConvolveFFT(img, k)
	for i := range direct.Data {
		assert.InDelta(t, direct.Data[i], viaFFT.Data[i], 1e-9)
	}
}

func TestConvolveEmpty(t *testing.T) {
	k, err := NewGaussianKernel(KernelParams{BlurWire: 1, BlurTick: 1, Sigma: 1})
	require.NoError(t, err)

	empty := hitimage.NewImage(0, 0, 0, 0)
	assert.True(t, Convolve(empty, k).Empty())
	assert.True(t, ConvolveFFT(empty, k).Empty())
}

func TestFindBlurringParameters(t *testing.T) {
	base := KernelParams{BlurWire: 6, BlurTick: 12, Sigma: 6}

	// 0.5 cm pitch, 0.08 cm per tick
	got := FindBlurringParameters(base, 0.5, 0.08)
	assert.Equal(t, 6, got.BlurWire)
	assert.Equal(t, 38, got.BlurTick)
	assert.Equal(t, 6.0, got.Sigma)
	assert.InDelta(t, 37.5, got.SigmaTick, 1e-12)

	// equal physical offsets get equal weights: 1 wire is 6.25 ticks
	k, err := NewGaussianKernel(KernelParams{BlurWire: 2, BlurTick: 13, Sigma: 1, SigmaTick: 6.25})
	require.NoError(t, err)
	centre := k.At(0, 0)
	assert.InDelta(t, math.Exp(-0.5), k.At(1, 0)/centre, 1e-12)
	assert.InDelta(t, math.Exp(-0.5*(13/6.25)*(13/6.25)), k.At(0, 13)/centre, 1e-12)
	assert.Greater(t, k.At(0, 12)/centre, k.At(2, 0)/centre)

	assert.Equal(t, 1, FindBlurringParameters(KernelParams{BlurWire: 0, Sigma: 1}, 0.5, 0.08).BlurTick)
	assert.Equal(t, base, FindBlurringParameters(base, 0, 0.08))
	assert.Equal(t, base, FindBlurringParameters(base, 0.5, -1))
}

func TestConvolveFFTEmptyBinsAreExactlyZero(t *testing.T) {
	points := map[[2]int]float64{}
	for i := 0; i < 10; i++ {
		points[[2]int{i + 2, i + 2}] = 20
		points[[2]int{i + 52, i + 2}] = 20
	}
	img := pointImage(64, 16, points)
	k, err := NewGaussianKernel(KernelParams{BlurWire: 4, BlurTick: 4, Sigma: 2})
	require.NoError(t, err)

	direct := Convolve(img, k)
	viaFFT := ConvolveFFT(img, k)
	for i := range direct.Data {
		if direct.Data[i] == 0 {
			assert.Zerof(t, viaFFT.Data[i], "bin %d outside every footprint", i)
		} else {
			assert.Greaterf(t, viaFFT.Data[i], 0.0, "bin %d inside a footprint", i)
		}
	}
}
