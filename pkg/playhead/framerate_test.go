// SPDX-License-Identifier: MIT
package playhead

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allFrameRates = []FrameRate{
	FPS24, FPS25, FPS2997, FPS30, FPS2997Drop, FPS30Drop, FPS60, FPS60Drop,
}

func TestFrameRateWireValues(t *testing.T) {
	want := map[FrameRate]int32{
		FPS24: 0, FPS25: 1, FPS2997: 2, FPS30: 3,
		FPS2997Drop: 4, FPS30Drop: 5, FPS60: 6, FPS60Drop: 7,
		FPSUnknown: 99,
	}
	for rate, value := range want {
		assert.Equal(t, value, int32(rate), rate.String())
	}
}

func TestFrameRateStringRoundTrip(t *testing.T) {
	for _, rate := range allFrameRates {
		t.Run(rate.String(), func(t *testing.T) {
			parsed, ok := ParseFrameRate(rate.String())
			assert.True(t, ok)
			assert.Equal(t, rate, parsed)
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in     string
		want   FrameRate
		wantOK bool
	}{
		{"25", FPS25, true},
		{" 29.97 ", FPS2997, true},
		{"29.97-drop", FPS2997Drop, true},
		{"30 DROP", FPS30Drop, true},
		{"60fps", FPS60, true},
		{"23.976", FPSUnknown, false},
		{"", FPSUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFrameRate(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameRateProperties(t *testing.T) {
	tests := []struct {
		rate    FrameRate
		fps     float64
		nominal int
		drop    bool
	}{
		{FPS24, 24, 24, false},
		{FPS25, 25, 25, false},
		{FPS2997, 29.97003, 30, false},
		{FPS30, 30, 30, false},
		{FPS2997Drop, 29.97003, 30, true},
		{FPS30Drop, 30, 30, true},
		{FPS60, 60, 60, false},
		{FPS60Drop, 59.94006, 60, true},
		{FPSUnknown, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.rate.String(), func(t *testing.T) {
			assert.InDelta(t, tt.fps, tt.rate.FramesPerSecond(), 1e-4)
			assert.Equal(t, tt.nominal, tt.rate.NominalFrames())
			assert.Equal(t, tt.drop, tt.rate.IsDrop())
			assert.Equal(t, tt.nominal != 0, tt.rate.IsKnown())
		})
	}
}

func TestFrameRateText(t *testing.T) {
	var rate FrameRate
	assert.NoError(t, rate.UnmarshalText([]byte("60drop")))
	assert.Equal(t, FPS60Drop, rate)

	assert.NoError(t, rate.UnmarshalText([]byte("unknown")))
	assert.Equal(t, FPSUnknown, rate)

	assert.Error(t, rate.UnmarshalText([]byte("12")))

	text, err := FPS2997.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "29.97", string(text))
}
