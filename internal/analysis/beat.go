// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	applog "playhead/internal/log"
	"playhead/internal/transport"
	"playhead/pkg/playhead"
)

const beatQueueSize = 64

var beatLog = applog.New("BeatTracker")

// BeatEvent marks a beat that starts inside a processed block.
type BeatEvent struct {
	Event        string  `json:"event"`        // Always "beat".
	Bar          int64   `json:"bar"`          // 1-based.
	Beat         int64   `json:"beat"`         // 1-based, in time signature denominator units.
	PPQ          float64 `json:"ppq"`          // Position of the beat in quarter notes.
	SampleOffset int     `json:"sampleOffset"` // Frame within the block where the beat falls.
	Downbeat     bool    `json:"downbeat"`     // First beat of a bar.
}

// BeatTracker follows the host's musical position and reports every beat
// boundary crossed while the transport plays. Events are queued from the
// audio thread without blocking and forwarded to a Transport by a
// background goroutine; when the queue is full, events are dropped and
// counted.
type BeatTracker struct {
	sampleRate float64
	channels   int
	out        transport.Transport

	lastBeat float64 // audio thread only

	events    chan BeatEvent
	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBeatTracker starts a tracker for interleaved input with the given
// channel count.
func NewBeatTracker(sampleRate float64, channels int, out transport.Transport) (*BeatTracker, error) {
	if sampleRate <= 0 || channels < 1 {
		return nil, errors.New("beat tracker: sample rate and channels must be positive")
	}
	if out == nil {
		return nil, errors.New("beat tracker: transport cannot be nil")
	}

	bt := &BeatTracker{
		sampleRate: sampleRate,
		channels:   channels,
		out:        out,
		lastBeat:   math.Inf(-1),
		events:     make(chan BeatEvent, beatQueueSize),
		done:       make(chan struct{}),
	}
	bt.wg.Add(1)
	go bt.forward()

	beatLog.Infof("Initialized (SampleRate: %.0f Hz, Channels: %d)", sampleRate, channels)
	return bt, nil
}

// Process emits the beats that fall inside this block.
func (bt *BeatTracker) Process(buffer []int32, ph playhead.PlayHead) {
	pos, ok := playhead.Query(ph)
	if !ok || !pos.IsPlaying || pos.BPM <= 0 || pos.TimeSigNumerator <= 0 || pos.TimeSigDenominator <= 0 {
		bt.lastBeat = math.Inf(-1)
		return
	}

	frames := len(buffer) / bt.channels
	if frames == 0 {
		return
	}

	beatLength := 4 / float64(pos.TimeSigDenominator)
	blockPPQ := float64(frames) / bt.sampleRate * pos.BPM / 60
	start := pos.PPQPosition
	end := start + blockPPQ

	// Rewind or loop wrap.
	if start < bt.lastBeat-beatLength/2 {
		bt.lastBeat = math.Inf(-1)
	}

	// A looping block that crosses the loop end is scanned in pieces: up to
	// the end, then on from the loop start, as the timeline wraps it.
	loop := pos.IsLooping && pos.PPQLoopEnd > pos.PPQLoopStart
	segStart, segEnd, elapsed := start, end, 0.0
	for {
		wrap := loop && segStart < pos.PPQLoopEnd && segEnd > pos.PPQLoopEnd
		clip := segEnd
		if wrap {
			clip = pos.PPQLoopEnd
		}
		bt.scan(pos, segStart, clip, elapsed, blockPPQ, frames)
		if !wrap {
			return
		}
		elapsed += clip - segStart
		segStart = pos.PPQLoopStart
		segEnd = segStart + blockPPQ - elapsed
		bt.lastBeat = math.Inf(-1)
	}
}

// scan emits the beats in [from, to). elapsed is the PPQ already played in
// this block before from, which places the beats within the block.
func (bt *BeatTracker) scan(pos playhead.PositionInfo, from, to, elapsed, blockPPQ float64, frames int) {
	beatLength := 4 / float64(pos.TimeSigDenominator)
	num := int64(pos.TimeSigNumerator)
	for n := int64(math.Ceil(from / beatLength)); float64(n)*beatLength < to; n++ {
		at := float64(n) * beatLength
		// The previous block may already have emitted this beat when
		// accumulated PPQ lands a hair either side of the boundary.
		if at <= bt.lastBeat+beatLength/2 {
			continue
		}
		bt.lastBeat = at

		beat := n % num
		if beat < 0 {
			beat += num
		}
		offset := int(math.Round((at - from + elapsed) / blockPPQ * float64(frames)))
		if offset >= frames {
			offset = frames - 1
		}
		ev := BeatEvent{
			Event:        "beat",
			Bar:          floorDiv(n, num) + 1,
			Beat:         beat + 1,
			PPQ:          at,
			SampleOffset: offset,
			Downbeat:     beat == 0,
		}
		select {
		case bt.events <- ev:
		default:
			bt.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events lost to a full queue.
func (bt *BeatTracker) Dropped() uint64 {
	return bt.dropped.Load()
}

func (bt *BeatTracker) forward() {
	defer bt.wg.Done()
	for {
		select {
		case ev := <-bt.events:
			if err := bt.out.Send(ev); err != nil {
				beatLog.Debugf("Error sending beat %d.%d: %v", ev.Bar, ev.Beat, err)
			}
		case <-bt.done:
			// Flush what the audio thread already queued.
			for {
				select {
				case ev := <-bt.events:
					_ = bt.out.Send(ev)
				default:
					return
				}
			}
		}
	}
}

// Close stops forwarding after delivering queued events. The transport is
// left open. Process must not be called after Close.
func (bt *BeatTracker) Close() error {
	bt.closeOnce.Do(func() {
		close(bt.done)
		bt.wg.Wait()
		if n := bt.Dropped(); n > 0 {
			beatLog.Warnf("Dropped %d beat events", n)
		}
	})
	return nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

var _ ClosableProcessor = (*BeatTracker)(nil)
