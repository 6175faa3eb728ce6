package color_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/g15tools/vibranced/internal/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-6

// chromaDistance returns the distance between two chromaticities in the
// (x, y) plane, ignoring luminance.
func chromaDistance(a, b color.Chromaticity) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TestChromaticityRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		orig := color.Tristimulus{
			X: rng.Float64(),
			Y: rng.Float64()*0.999 + 0.001, // Y in (0, 1]
			Z: rng.Float64(),
		}

		back := color.FromChromaticity(color.ToChromaticity(orig))
		assert.InDelta(t, orig.X, back.X, epsilon)
		assert.InDelta(t, orig.Y, back.Y, epsilon)
		assert.InDelta(t, orig.Z, back.Z, epsilon)
	}
}

func TestToChromaticity_ZeroSum(t *testing.T) {
	c := color.ToChromaticity(color.Tristimulus{})

	// Fallback is the PCS white chromaticity, not a failure.
	white := color.ToChromaticity(color.D50)
	assert.InDelta(t, white.X, c.X, epsilon)
	assert.InDelta(t, white.Y, c.Y, epsilon)
	assert.Equal(t, 0.0, c.Lum)
}

func TestFromChromaticity_ZeroY(t *testing.T) {
	c := color.Chromaticity{X: 0.3, Y: 0, Lum: 0.5}
	assert.Equal(t, color.Tristimulus{}, color.FromChromaticity(c))
}

func TestScaleSaturation_Identity(t *testing.T) {
	primaries := []color.Tristimulus{
		{X: 0.4360, Y: 0.2225, Z: 0.0139}, // sRGB red under D50
		{X: 0.3851, Y: 0.7169, Z: 0.0971}, // sRGB green under D50
		{X: 0.1431, Y: 0.0606, Z: 0.7139}, // sRGB blue under D50
	}

	for _, p := range primaries {
		scaled := color.ScaleSaturation(p, color.D50, 1.0)

		orig := color.ToChromaticity(p)
		got := color.ToChromaticity(scaled)
		assert.InDelta(t, orig.X, got.X, epsilon)
		assert.InDelta(t, orig.Y, got.Y, epsilon)
		assert.InDelta(t, p.Y, scaled.Y, epsilon, "luminance must be preserved")
	}
}

func TestScaleSaturation_MonotonicDistanceFromWhite(t *testing.T) {
	red := color.Tristimulus{X: 0.4360, Y: 0.2225, Z: 0.0139}
	white := color.ToChromaticity(color.D50)

	// Lower user values scale the factor up and push the primary away
	// from white; higher values pull it in.
	inputs := []float64{0.01, 0.25, 0.5, 1.0, 1.5, 2.0, 4.0}

	var prev float64 = math.Inf(1)
	for _, sat := range inputs {
		scaled := color.ScaleSaturation(red, color.D50, sat)
		dist := chromaDistance(color.ToChromaticity(scaled), white)
		assert.Less(t, dist, prev, "saturation %.2f should land closer to white than the previous step", sat)
		prev = dist
	}
}

func TestScaleSaturation_PreservesLuminance(t *testing.T) {
	green := color.Tristimulus{X: 0.3851, Y: 0.7169, Z: 0.0971}

	for _, sat := range []float64{0.01, 0.5, 1.0, 2.0, 4.0} {
		scaled := color.ScaleSaturation(green, color.D50, sat)
		assert.InDelta(t, green.Y, scaled.Y, epsilon)
	}
}

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		name       string
		saturation float64
		expected   float64
	}{
		{
			name:       "neutral input is the identity factor",
			saturation: 1.0,
			expected:   1.0,
		},
		{
			name:       "half saturation doubles the factor",
			saturation: 0.5,
			expected:   2.0,
		},
		{
			name:       "zero input is clamped to the floor",
			saturation: 0.0,
			expected:   100.0,
		},
		{
			name:       "negative input is clamped to the floor",
			saturation: -1.0,
			expected:   100.0,
		},
		{
			name:       "maximum input quarters the factor",
			saturation: 4.0,
			expected:   0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, color.ScaleFactor(tt.saturation), epsilon)
		})
	}
}

func TestScaleSaturation_ZeroInputDoesNotDivideByZero(t *testing.T) {
	red := color.Tristimulus{X: 0.4360, Y: 0.2225, Z: 0.0139}

	scaled := color.ScaleSaturation(red, color.D50, 0.0)
	require.False(t, math.IsNaN(scaled.X))
	require.False(t, math.IsInf(scaled.X, 0))
}
