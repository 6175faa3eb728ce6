// SPDX-License-Identifier: GPL-3.0-only

// Package color provides the chromaticity math and tone curve synthesis
// used to build vibrance-adjusted ICC profiles.
package color

// Tristimulus is a CIE XYZ color value. The Y component doubles as
// relative luminance.
type Tristimulus struct {
	X float64
	Y float64
	Z float64
}

// Chromaticity is a CIE xyY color value: normalized chromaticity
// coordinates (x, y) plus relative luminance Y.
type Chromaticity struct {
	X   float64 // little x
	Y   float64 // little y
	Lum float64 // big Y
}

// D50 is the ICC profile connection space white point (CIE illuminant D50).
// All primary rescaling is performed against this white, as the base
// template's primaries are expressed relative to the PCS.
var D50 = Tristimulus{X: 0.9642, Y: 1.0, Z: 0.8249}

// MinSaturation is the floor applied to user saturation input. It avoids
// a division by zero in the scale factor and caps the boost at very small
// inputs.
const MinSaturation = 0.01

// ToChromaticity converts an XYZ value to xyY. A zero tristimulus sum has
// no defined chromaticity; the PCS white chromaticity is returned instead
// so callers never divide by zero.
func ToChromaticity(t Tristimulus) Chromaticity {
	sum := t.X + t.Y + t.Z
	if sum == 0 {
		white := ToChromaticity(D50)
		white.Lum = t.Y
		return white
	}
	return Chromaticity{
		X:   t.X / sum,
		Y:   t.Y / sum,
		Lum: t.Y,
	}
}

// FromChromaticity converts an xyY value back to XYZ. If y is zero the
// value carries no luminance and the zero tristimulus is returned.
func FromChromaticity(c Chromaticity) Tristimulus {
	if c.Y == 0 {
		return Tristimulus{}
	}
	return Tristimulus{
		X: (c.Lum / c.Y) * c.X,
		Y: c.Lum,
		Z: (c.Lum / c.Y) * (1 - c.X - c.Y),
	}
}

// ScaleSaturation rescales a primary's chromaticity relative to the white
// point. The factor is the inverse of the user value: saturation 1.0 is
// the identity, values below 1.0 push the primary away from white (boost),
// values above 1.0 pull it toward white (desaturate). Luminance is
// preserved unchanged.
//
// The inverse mapping is inherited behavior; see ScaleFactor.
func ScaleSaturation(primary, white Tristimulus, saturation float64) Tristimulus {
	factor := ScaleFactor(saturation)

	p := ToChromaticity(primary)
	w := ToChromaticity(white)

	scaled := Chromaticity{
		X:   w.X + (p.X-w.X)*factor,
		Y:   w.Y + (p.Y-w.Y)*factor,
		Lum: p.Lum,
	}
	return FromChromaticity(scaled)
}

// ScaleFactor maps the user-facing saturation value to the chromaticity
// scale factor, clamping the input to MinSaturation first.
func ScaleFactor(saturation float64) float64 {
	if saturation < MinSaturation {
		saturation = MinSaturation
	}
	return 1 / saturation
}
