// Package blur builds Gaussian smoothing kernels and convolves charge images
// with them.
package blur

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidKernel is returned for kernel parameters that give no usable footprint
var ErrInvalidKernel = errors.New("invalid blur kernel parameters")

// KernelParams identify a Gaussian kernel
type KernelParams struct {
	// BlurWire is the kernel radius along the wire axis, in bins
	BlurWire int

	// BlurTick is the kernel radius along the tick axis, in bins
	BlurTick int

	// Sigma is the Gaussian width along the wire axis, in bins
	Sigma float64

	// SigmaTick is the Gaussian width along the tick axis, in bins.
	// Zero means Sigma is used for both axes.
	SigmaTick float64
}

// TickSigma returns the width used along the tick axis
func (p KernelParams) TickSigma() float64 {
	if p.SigmaTick == 0 {
		return p.Sigma
	}
	return p.SigmaTick
}

// Validate checks that the parameters describe a kernel
func (p KernelParams) Validate() error {
	if p.BlurWire < 0 || p.BlurTick < 0 {
		return errors.Wrapf(ErrInvalidKernel, "radius (%d, %d) must not be negative", p.BlurWire, p.BlurTick)
	}
	if !(p.Sigma > 0) || math.IsInf(p.Sigma, 0) {
		return errors.Wrapf(ErrInvalidKernel, "sigma %g must be positive", p.Sigma)
	}
	if p.SigmaTick < 0 || math.IsNaN(p.SigmaTick) || math.IsInf(p.SigmaTick, 0) {
		return errors.Wrapf(ErrInvalidKernel, "tick sigma %g must be positive", p.SigmaTick)
	}
	return nil
}

// Kernel is a normalised 2D Gaussian weight grid.
// Data is stored wire-major like hitimage.Image: Data[i*Ticks+j].
type Kernel struct {
	Params KernelParams
	Data   []float64
	Wires  int
	Ticks  int
}

// At returns the weight at offset (dw, dt) from the kernel centre
func (k *Kernel) At(dw, dt int) float64 {
	return k.Data[(dw+k.Params.BlurWire)*k.Ticks+dt+k.Params.BlurTick]
}

// NewGaussianKernel computes the kernel for p. Weights sum to one so that
// convolution preserves the total charge of an image.
func NewGaussianKernel(p KernelParams) (*Kernel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		Params: p,
		Wires:  2*p.BlurWire + 1,
		Ticks:  2*p.BlurTick + 1,
	}
	k.Data = make([]float64, k.Wires*k.Ticks)

	twoSigmaWire2 := 2 * p.Sigma * p.Sigma
	sigmaTick := p.TickSigma()
	twoSigmaTick2 := 2 * sigmaTick * sigmaTick
	for i := 0; i < k.Wires; i++ {
		di := float64(i - p.BlurWire)
		for j := 0; j < k.Ticks; j++ {
			dj := float64(j - p.BlurTick)
			k.Data[i*k.Ticks+j] = math.Exp(-(di*di/twoSigmaWire2 + dj*dj/twoSigmaTick2))
		}
	}

	// The centre weight is exp(0) = 1, so the sum is never zero
	floats.Scale(1/floats.Sum(k.Data), k.Data)

	return k, nil
}

// KernelCache remembers the last kernel it built.
//
// A request with the same parameters as the previous one returns the cached
// kernel; any other request rebuilds and replaces it. The cache is safe for
// concurrent use.
type KernelCache struct {
	mu            sync.Mutex
	last          *Kernel
	regenerations int
}

// NewKernelCache creates an empty kernel cache
func NewKernelCache() *KernelCache {
	return &KernelCache{}
}

// Get returns the kernel for p, building it if p differs from the last request
func (c *KernelCache) Get(p KernelParams) (*Kernel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && c.last.Params == p {
		return c.last, nil
	}

	k, err := NewGaussianKernel(p)
	if err != nil {
		return nil, err
	}
	c.last = k
	c.regenerations++
	return k, nil
}

// Invalidate drops the cached kernel
func (c *KernelCache) Invalidate() {
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}

// Regenerations returns how many kernels the cache has built
func (c *KernelCache) Regenerations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regenerations
}
