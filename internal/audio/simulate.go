// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"math"
	"time"
)

// SimulatedTone is the frequency of the signal fed by Simulate.
const SimulatedTone = 440.0

// Simulate drives the engine without a device by calling the audio
// callback with a generated sine. It stops after blocks callbacks, or
// when ctx is done if blocks <= 0. With realtime set, callbacks are paced
// at the rate a device would deliver them.
func (e *Engine) Simulate(ctx context.Context, blocks int, realtime bool) error {
	frames := e.config.Audio.FramesPerBuffer
	in := make([]int32, frames*e.channels)
	tone := newSineSource(e.config.Audio.SampleRate, SimulatedTone, e.channels)

	var tick <-chan time.Time
	if realtime {
		period := time.Duration(float64(frames) / e.config.Audio.SampleRate * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	engineLog.Infof("Simulating %d-frame blocks at %.0f Hz (realtime=%t)", frames, e.config.Audio.SampleRate, realtime)
	for n := 0; blocks <= 0 || n < blocks; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		tone.fill(in)
		e.processInputStream(in)
	}
	return nil
}

// sineSource generates a continuous interleaved sine across blocks.
type sineSource struct {
	phase    float64
	step     float64
	channels int
}

func newSineSource(sampleRate, frequency float64, channels int) *sineSource {
	return &sineSource{step: 2 * math.Pi * frequency / sampleRate, channels: channels}
}

func (s *sineSource) fill(buffer []int32) {
	for i := 0; i+s.channels <= len(buffer); i += s.channels {
		v := int32(math.Sin(s.phase) * math.MaxInt32 * 0.5)
		for c := range s.channels {
			buffer[i+c] = v
		}
		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}
