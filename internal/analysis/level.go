// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"playhead/pkg/playhead"
)

// Level is one block's signal level, normalized to [0, 1] of full scale.
type Level struct {
	Peak float64
	RMS  float64
}

// DBFS converts a normalized level to decibels relative to full scale.
// Silence returns -Inf.
func DBFS(v float64) float64 {
	return 20 * math.Log10(v)
}

// LevelMeter measures the peak and RMS of every block and publishes them
// for readers on other goroutines. It also acts as a gate: Open reports
// whether the last peak exceeded the threshold.
type LevelMeter struct {
	scratch   []float64
	threshold atomic.Int32
	peak      atomic.Uint64
	rms       atomic.Uint64
	blocks    atomic.Uint64
}

// NewLevelMeter sizes the meter for blocks of up to maxSamples interleaved
// samples. Larger blocks are measured over their first maxSamples samples.
func NewLevelMeter(maxSamples int) *LevelMeter {
	return &LevelMeter{scratch: make([]float64, maxSamples)}
}

// Process measures buffer. The play head is not used.
func (lm *LevelMeter) Process(buffer []int32, _ playhead.PlayHead) {
	if len(buffer) > len(lm.scratch) {
		buffer = buffer[:len(lm.scratch)]
	}
	if len(buffer) == 0 {
		return
	}

	// Branchless absolute value and running max.
	var maxAmplitude int32
	for _, sample := range buffer {
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		if amplitude < 0 { // math.MinInt32 has no positive counterpart
			amplitude = math.MaxInt32
		}
		diff := amplitude - maxAmplitude
		maxAmplitude += diff &^ (diff >> 31)
	}

	s := lm.scratch[:len(buffer)]
	for i, sample := range buffer {
		s[i] = float64(sample) / math.MaxInt32
	}
	rms := floats.Norm(s, 2) / math.Sqrt(float64(len(s)))

	lm.peak.Store(math.Float64bits(float64(maxAmplitude) / math.MaxInt32))
	lm.rms.Store(math.Float64bits(rms))
	lm.blocks.Add(1)
}

// Level returns the measurement of the most recent block.
func (lm *LevelMeter) Level() Level {
	return Level{
		Peak: math.Float64frombits(lm.peak.Load()),
		RMS:  math.Float64frombits(lm.rms.Load()),
	}
}

// Blocks returns the number of blocks measured.
func (lm *LevelMeter) Blocks() uint64 {
	return lm.blocks.Load()
}

// SetThreshold sets the gate threshold in [0, 1] of full scale. Values
// outside the range are clamped.
func (lm *LevelMeter) SetThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	lm.threshold.Store(int32(threshold * math.MaxInt32))
}

// Threshold returns the gate threshold in [0, 1].
func (lm *LevelMeter) Threshold() float64 {
	return float64(lm.threshold.Load()) / math.MaxInt32
}

// Open reports whether the last block's peak exceeded the threshold.
func (lm *LevelMeter) Open() bool {
	return math.Float64frombits(lm.peak.Load()) > lm.Threshold()
}

var _ Processor = (*LevelMeter)(nil)
