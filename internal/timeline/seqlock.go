// SPDX-License-Identifier: MIT
package timeline

import (
	"math"
	"runtime"
	"sync/atomic"

	"playhead/pkg/playhead"
)

const (
	flagPlaying uint32 = 1 << iota
	flagRecording
	flagLooping
)

// snapshotCell publishes PositionInfo values from one writer to any number of
// readers. Every field is stored atomically and guarded by a sequence counter
// that is odd while a write is in progress, so readers retry instead of
// observing a torn snapshot and the writer never waits.
type snapshotCell struct {
	seq atomic.Uint64

	bpm           atomic.Uint64
	timeSig       atomic.Uint64 // numerator<<32 | denominator
	samples       atomic.Int64
	seconds       atomic.Uint64
	editOrigin    atomic.Uint64
	ppq           atomic.Uint64
	lastBarStart  atomic.Uint64
	frameRate     atomic.Int32
	flags         atomic.Uint32
	loopStart     atomic.Uint64
	loopEnd       atomic.Uint64
	everPublished atomic.Bool
}

// store must only be called by the single writer.
func (c *snapshotCell) store(p *playhead.PositionInfo) {
	seq := c.seq.Load()
	c.seq.Store(seq + 1)

	c.bpm.Store(math.Float64bits(p.BPM))
	c.timeSig.Store(uint64(uint32(p.TimeSigNumerator))<<32 | uint64(uint32(p.TimeSigDenominator)))
	c.samples.Store(p.TimeInSamples)
	c.seconds.Store(math.Float64bits(p.TimeInSeconds))
	c.editOrigin.Store(math.Float64bits(p.EditOriginTime))
	c.ppq.Store(math.Float64bits(p.PPQPosition))
	c.lastBarStart.Store(math.Float64bits(p.PPQPositionOfLastBarStart))
	c.frameRate.Store(int32(p.FrameRate))

	var flags uint32
	if p.IsPlaying {
		flags |= flagPlaying
	}
	if p.IsRecording {
		flags |= flagRecording
	}
	if p.IsLooping {
		flags |= flagLooping
	}
	c.flags.Store(flags)
	c.loopStart.Store(math.Float64bits(p.PPQLoopStart))
	c.loopEnd.Store(math.Float64bits(p.PPQLoopEnd))

	c.seq.Store(seq + 2)
	c.everPublished.Store(true)
}

// load returns the latest consistent snapshot, or false if nothing has been
// published yet.
func (c *snapshotCell) load() (playhead.PositionInfo, bool) {
	if !c.everPublished.Load() {
		return playhead.PositionInfo{}, false
	}

	for spins := 0; ; spins++ {
		before := c.seq.Load()
		if before&1 == 1 {
			if spins > 64 {
				runtime.Gosched()
			}
			continue
		}

		var p playhead.PositionInfo
		p.BPM = math.Float64frombits(c.bpm.Load())
		ts := c.timeSig.Load()
		p.TimeSigNumerator = int32(uint32(ts >> 32))
		p.TimeSigDenominator = int32(uint32(ts))
		p.TimeInSamples = c.samples.Load()
		p.TimeInSeconds = math.Float64frombits(c.seconds.Load())
		p.EditOriginTime = math.Float64frombits(c.editOrigin.Load())
		p.PPQPosition = math.Float64frombits(c.ppq.Load())
		p.PPQPositionOfLastBarStart = math.Float64frombits(c.lastBarStart.Load())
		p.FrameRate = playhead.FrameRate(c.frameRate.Load())
		flags := c.flags.Load()
		p.IsPlaying = flags&flagPlaying != 0
		p.IsRecording = flags&flagRecording != 0
		p.IsLooping = flags&flagLooping != 0
		p.PPQLoopStart = math.Float64frombits(c.loopStart.Load())
		p.PPQLoopEnd = math.Float64frombits(c.loopEnd.Load())

		if c.seq.Load() == before {
			return p, true
		}
	}
}
