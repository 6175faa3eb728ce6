// SPDX-License-Identifier: GPL-3.0-only

package color

import (
	"fmt"
	"math"
)

const (
	// ReferenceGamma is the display transfer exponent the synthesized
	// curve is expressed against (approximate sRGB exponent). A user
	// gamma of 1.0 therefore yields a plain 2.2 power ramp.
	ReferenceGamma = 2.2

	// CurveSamples is the number of LUT entries in a synthesized tone curve.
	CurveSamples = 256

	// CurveDepth is the maximum quantized output value of a curve sample.
	CurveDepth = 65535

	// MinGamma and MaxGamma bound the accepted user gamma. Values at or
	// below MinGamma would produce an unbounded exponent.
	MinGamma = 0.1
	MaxGamma = 3.0
)

// ToneCurve is a sampled tone reproduction curve over the input domain
// [0, 1]. Samples are quantized to CurveDepth and non-decreasing. One
// curve is shared by all three channels.
type ToneCurve struct {
	Samples []uint16
}

// BuildGammaLUT synthesizes the tone curve for a user gamma value. The
// profile exponent is ReferenceGamma divided by the user value, so 1.0 is
// the neutral 2.2 ramp, values above 1.0 flatten the curve and values
// below steepen it.
//
// The 2.2/userGamma mapping is inherited from the tool this daemon
// replaces and is kept for behavioral compatibility; it is not a verified
// colorimetric model.
func BuildGammaLUT(userGamma float64) (ToneCurve, error) {
	if userGamma <= MinGamma || userGamma > MaxGamma {
		return ToneCurve{}, fmt.Errorf("gamma %.2f outside (%.1f, %.1f]", userGamma, MinGamma, MaxGamma)
	}

	exponent := ReferenceGamma / userGamma
	samples := make([]uint16, CurveSamples)
	for i := range samples {
		x := float64(i) / float64(CurveSamples-1)
		y := math.Round(math.Pow(x, exponent) * CurveDepth)
		if y < 0 {
			y = 0
		}
		if y > CurveDepth {
			y = CurveDepth
		}
		samples[i] = uint16(y)
	}
	return ToneCurve{Samples: samples}, nil
}
