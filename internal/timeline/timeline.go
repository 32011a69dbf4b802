// SPDX-License-Identifier: MIT
/*
Package timeline implements the host side of the transport: a sample
accurate play head advanced once per processing block.

Threading:
  - BeginBlock is called only from the audio callback (single writer) and
    never allocates or blocks.
  - Transport commands may be issued from any goroutine. They are published
    as an immutable control state through an atomic pointer and take effect
    at the next block boundary.
  - CurrentPosition may be called from any goroutine and returns the
    snapshot published at the start of the most recent block.
*/
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	applog "playhead/internal/log"
	"playhead/pkg/playhead"
)

// ErrInvalidConfig is returned (wrapped) when a Config or setting is rejected.
var ErrInvalidConfig = errors.New("invalid timeline configuration")

// Config holds the initial transport settings.
type Config struct {
	SampleRate         float64
	BPM                float64
	TimeSigNumerator   int32
	TimeSigDenominator int32
	FrameRate          playhead.FrameRate
	EditOriginTime     float64 // seconds from 00:00:00:00
	LoopStartPPQ       float64
	LoopEndPPQ         float64
	Looping            bool
}

// DefaultConfig returns 120 BPM in 4/4 at the given sample rate with no loop.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:         sampleRate,
		BPM:                playhead.DefaultBPM,
		TimeSigNumerator:   playhead.DefaultTimeSigNumerator,
		TimeSigDenominator: playhead.DefaultTimeSigDenominator,
		FrameRate:          playhead.FPS25,
	}
}

// Validate checks c for values the timeline cannot run with.
func (c Config) Validate() error {
	if c.SampleRate <= 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidConfig, c.SampleRate)
	}
	if err := validateTempo(c.BPM); err != nil {
		return err
	}
	if err := validateTimeSignature(c.TimeSigNumerator, c.TimeSigDenominator); err != nil {
		return err
	}
	if c.Looping {
		if err := validateLoop(c.LoopStartPPQ, c.LoopEndPPQ); err != nil {
			return err
		}
	}
	return nil
}

func validateTempo(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: tempo must be positive, got %v", ErrInvalidConfig, bpm)
	}
	return nil
}

func validateTimeSignature(num, den int32) error {
	if num <= 0 || den <= 0 {
		return fmt.Errorf("%w: time signature must be positive, got %d/%d", ErrInvalidConfig, num, den)
	}
	return nil
}

func validateLoop(start, end float64) error {
	if start < 0 || end <= start || math.IsNaN(start) || math.IsNaN(end) {
		return fmt.Errorf("%w: loop range [%v, %v) is empty or negative", ErrInvalidConfig, start, end)
	}
	return nil
}

// controlState is the transport state requested by control goroutines.
// Instances are immutable once published.
type controlState struct {
	playing   bool
	recording bool
	looping   bool
	bpm       float64
	num, den  int32
	loopStart float64
	loopEnd   float64
	rewinds   uint64
}

// Timeline is the host transport. It implements playhead.PlayHead with
// transport control.
type Timeline struct {
	sampleRate float64
	frameRate  playhead.FrameRate
	editOrigin float64

	// Control side.
	controlMu sync.Mutex
	requested controlState
	control   atomic.Pointer[controlState]

	// Audio side, owned by the goroutine calling BeginBlock.
	applied *controlState
	state   controlState
	samples int64
	ppq     float64
	block   playhead.PositionInfo

	// loopAnchor is TimeInSamples at the moment the play head passed
	// loopStart. Wraps restore samples from it.
	loopAnchor int64
	anchored   bool

	published snapshotCell
	blocks    atomic.Uint64
}

var _ playhead.PlayHead = (*Timeline)(nil)

// New creates a stopped Timeline positioned at the start of the edit.
func New(cfg Config) (*Timeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Timeline{
		sampleRate: cfg.SampleRate,
		frameRate:  cfg.FrameRate,
		editOrigin: cfg.EditOriginTime,
		requested: controlState{
			looping:   cfg.Looping,
			bpm:       cfg.BPM,
			num:       cfg.TimeSigNumerator,
			den:       cfg.TimeSigDenominator,
			loopStart: cfg.LoopStartPPQ,
			loopEnd:   cfg.LoopEndPPQ,
		},
	}
	initial := t.requested
	t.control.Store(&initial)
	t.applied = &initial
	t.state = initial

	applog.Infof("Timeline: Initialized (SampleRate: %.0f Hz, Tempo: %.2f BPM, Signature: %d/%d, FrameRate: %s)",
		cfg.SampleRate, cfg.BPM, cfg.TimeSigNumerator, cfg.TimeSigDenominator, cfg.FrameRate)
	return t, nil
}

// SampleRate returns the sample rate positions are measured against.
func (t *Timeline) SampleRate() float64 {
	return t.sampleRate
}

// Blocks returns the number of blocks processed so far.
func (t *Timeline) Blocks() uint64 {
	return t.blocks.Load()
}

// BeginBlock applies pending transport commands, publishes the position for
// the start of a block of the given number of frames and moves the play head
// to the end of that block. It returns the published snapshot.
//
// Audio thread only.
func (t *Timeline) BeginBlock(frames int) playhead.PositionInfo {
	t.applyControl()
	t.fillBlock()
	t.published.store(&t.block)

	if t.state.playing && frames > 0 {
		t.advance(frames)
	}
	t.blocks.Add(1)
	return t.block
}

func (t *Timeline) applyControl() {
	next := t.control.Load()
	if next == t.applied {
		return
	}
	if next.rewinds != t.applied.rewinds {
		t.samples = 0
		t.ppq = 0
		t.anchored = false
	}
	if next.looping != t.state.looping || next.loopStart != t.state.loopStart || next.loopEnd != t.state.loopEnd {
		t.anchored = false
	}
	t.state = *next
	t.applied = next
	t.wrapLoop()
}

func (t *Timeline) fillBlock() {
	b := &t.block
	b.BPM = t.state.bpm
	b.TimeSigNumerator = t.state.num
	b.TimeSigDenominator = t.state.den
	b.TimeInSamples = t.samples
	b.TimeInSeconds = float64(t.samples) / t.sampleRate
	b.EditOriginTime = t.editOrigin
	b.PPQPosition = t.ppq
	qpb := float64(t.state.num) * 4 / float64(t.state.den)
	b.PPQPositionOfLastBarStart = math.Floor(t.ppq/qpb) * qpb
	b.FrameRate = t.frameRate
	b.IsPlaying = t.state.playing
	b.IsRecording = t.state.recording && t.state.playing
	b.PPQLoopStart = t.state.loopStart
	b.PPQLoopEnd = t.state.loopEnd
	b.IsLooping = t.state.looping
}

func (t *Timeline) advance(frames int) {
	from, fromSamples := t.ppq, t.samples
	step := float64(frames) / t.sampleRate * t.state.bpm / 60
	t.samples += int64(frames)
	t.ppq += step

	s := &t.state
	if s.looping && !t.anchored && from <= s.loopStart && t.ppq > s.loopStart {
		t.loopAnchor = fromSamples + int64(math.Round((s.loopStart-from)/step*float64(frames)))
		t.anchored = true
	}
	t.wrapLoop()
}

// wrapLoop keeps the play head inside [loopStart, loopEnd) while looping.
// Positions before the loop start are left alone so playback runs into it.
// Samples go back to the loop anchor plus the part of the block played past
// the loop end, so tempo changes inside the loop do not skew them.
func (t *Timeline) wrapLoop() {
	s := &t.state
	if !s.looping || s.loopEnd <= s.loopStart || t.ppq < s.loopEnd {
		return
	}

	samplesPerPPQ := 60 / s.bpm * t.sampleRate
	if !t.anchored {
		// Loop entered from inside (looping switched on mid-range): the
		// best estimate for the anchor is the current tempo.
		t.loopAnchor = t.samples - int64(math.Round((t.ppq-s.loopStart)*samplesPerPPQ))
		t.anchored = true
	}

	length := s.loopEnd - s.loopStart
	wraps := math.Floor((t.ppq - s.loopStart) / length)
	t.ppq -= wraps * length
	t.samples = t.loopAnchor + int64(math.Round((t.ppq-s.loopStart)*samplesPerPPQ))
	if t.samples < 0 {
		t.samples = 0
	}
}

// CurrentPosition returns the snapshot published at the start of the most
// recent block. It is false until the first block has been processed. Safe
// to call from any goroutine.
func (t *Timeline) CurrentPosition() (playhead.PositionInfo, bool) {
	return t.published.load()
}

// CanControlTransport always reports true.
func (t *Timeline) CanControlTransport() bool {
	return true
}

// update publishes a modified copy of the requested control state.
func (t *Timeline) update(modify func(s *controlState)) {
	t.controlMu.Lock()
	modify(&t.requested)
	next := t.requested
	t.control.Store(&next)
	t.controlMu.Unlock()
}

// TransportPlay starts or stops playback. Stopping also stops recording.
func (t *Timeline) TransportPlay(shouldStartPlaying bool) {
	applog.Debugf("Timeline: Play requested (%v)", shouldStartPlaying)
	t.update(func(s *controlState) {
		s.playing = shouldStartPlaying
		if !shouldStartPlaying {
			s.recording = false
		}
	})
}

// TransportRecord starts or stops recording. Starting to record also starts
// playback; stopping leaves playback running.
func (t *Timeline) TransportRecord(shouldStartRecording bool) {
	applog.Debugf("Timeline: Record requested (%v)", shouldStartRecording)
	t.update(func(s *controlState) {
		s.recording = shouldStartRecording
		if shouldStartRecording {
			s.playing = true
		}
	})
}

// TransportRewind moves the play head to the start of the edit without
// changing the play state.
func (t *Timeline) TransportRewind() {
	applog.Debugf("Timeline: Rewind requested")
	t.update(func(s *controlState) {
		s.rewinds++
	})
}

// SetLooping enables or disables cycling over the loop range.
func (t *Timeline) SetLooping(looping bool) error {
	var err error
	t.update(func(s *controlState) {
		if looping {
			if err = validateLoop(s.loopStart, s.loopEnd); err != nil {
				return
			}
		}
		s.looping = looping
	})
	return err
}

// SetLoopRange sets the cycle region in quarter notes.
func (t *Timeline) SetLoopRange(startPPQ, endPPQ float64) error {
	if err := validateLoop(startPPQ, endPPQ); err != nil {
		return err
	}
	t.update(func(s *controlState) {
		s.loopStart = startPPQ
		s.loopEnd = endPPQ
	})
	return nil
}

// SetTempo changes the tempo from the next block on. PPQ stays continuous.
func (t *Timeline) SetTempo(bpm float64) error {
	if err := validateTempo(bpm); err != nil {
		return err
	}
	t.update(func(s *controlState) {
		s.bpm = bpm
	})
	return nil
}

// Tempo returns the most recently requested tempo.
func (t *Timeline) Tempo() float64 {
	t.controlMu.Lock()
	defer t.controlMu.Unlock()
	return t.requested.bpm
}

// Looping reports whether looping has been requested.
func (t *Timeline) Looping() bool {
	t.controlMu.Lock()
	defer t.controlMu.Unlock()
	return t.requested.looping
}

// SetTimeSignature changes the time signature from the next block on.
func (t *Timeline) SetTimeSignature(numerator, denominator int32) error {
	if err := validateTimeSignature(numerator, denominator); err != nil {
		return err
	}
	t.update(func(s *controlState) {
		s.num = numerator
		s.den = denominator
	})
	return nil
}
