package blur

import (
	"math"
)

// FindBlurringParameters adapts the tick axis of base to the detector so the
// kernel spans the same physical distance along both axes.
//
// wirePitch is the wire spacing and tickLength the drift distance per tick,
// both in the same unit. The tick radius becomes BlurWire*wirePitch/tickLength,
// rounded up and never below one bin, and the tick width Sigma scaled by the
// same ratio. Non-positive inputs return base unchanged.
func FindBlurringParameters(base KernelParams, wirePitch, tickLength float64) KernelParams {
	if wirePitch <= 0 || tickLength <= 0 {
		return base
	}

	ratio := wirePitch / tickLength
	out := base
	out.BlurTick = max(1, int(math.Ceil(float64(base.BlurWire)*ratio)))
	out.SigmaTick = base.Sigma * ratio
	return out
}
