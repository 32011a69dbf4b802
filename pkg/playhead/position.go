// SPDX-License-Identifier: MIT
package playhead

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Default values applied by ResetToDefault.
const (
	DefaultBPM                = 120
	DefaultTimeSigNumerator   = 4
	DefaultTimeSigDenominator = 4
)

// Validation errors returned (wrapped) by PositionInfo.Validate.
var (
	ErrRecordingNotPlaying  = errors.New("recording while not playing")
	ErrInvalidTempo         = errors.New("invalid tempo")
	ErrInvalidTimeSignature = errors.New("invalid time signature")
	ErrInvalidLoop          = errors.New("invalid loop range")
)

// PositionInfo describes the transport at the start of a processing block.
// It is a plain value: providers fill a fresh copy on every query, and it is
// only meaningful for the block it was obtained in.
type PositionInfo struct {
	// BPM is the tempo in beats per minute.
	BPM float64 `json:"bpm"`

	// TimeSigNumerator and TimeSigDenominator hold the time signature, e.g.
	// 3 and 4 for 3/4.
	TimeSigNumerator   int32 `json:"timeSigNumerator"`
	TimeSigDenominator int32 `json:"timeSigDenominator"`

	// TimeInSamples is the play position in samples from the start of the edit.
	TimeInSamples int64 `json:"timeInSamples"`
	// TimeInSeconds is the same position in seconds.
	TimeInSeconds float64 `json:"timeInSeconds"`

	// EditOriginTime is the position of the start of the edit in seconds from
	// timecode 00:00:00:00.
	EditOriginTime float64 `json:"editOriginTime"`

	// PPQPosition is the play position in quarter notes.
	PPQPosition float64 `json:"ppqPosition"`

	// PPQPositionOfLastBarStart is the start of the current bar in quarter
	// notes. Zero when the host cannot supply it.
	PPQPositionOfLastBarStart float64 `json:"ppqPositionOfLastBarStart"`

	FrameRate FrameRate `json:"frameRate"`

	IsPlaying bool `json:"isPlaying"`
	// IsRecording implies IsPlaying.
	IsRecording bool `json:"isRecording"`

	// PPQLoopStart and PPQLoopEnd bound the cycle region in quarter notes.
	// Not every host supplies them.
	PPQLoopStart float64 `json:"ppqLoopStart"`
	PPQLoopEnd   float64 `json:"ppqLoopEnd"`
	IsLooping    bool    `json:"isLooping"`
}

// DefaultPositionInfo returns a reset PositionInfo: everything zero except
// 120 BPM in 4/4.
func DefaultPositionInfo() PositionInfo {
	var p PositionInfo
	p.ResetToDefault()
	return p
}

// ResetToDefault clears p back to DefaultPositionInfo.
func (p *PositionInfo) ResetToDefault() {
	*p = PositionInfo{
		BPM:                DefaultBPM,
		TimeSigNumerator:   DefaultTimeSigNumerator,
		TimeSigDenominator: DefaultTimeSigDenominator,
	}
}

// Equal reports whether every field of p and other is identical.
func (p PositionInfo) Equal(other PositionInfo) bool {
	return p == other
}

// Validate checks the invariants a conforming provider must keep.
func (p PositionInfo) Validate() error {
	if p.IsRecording && !p.IsPlaying {
		return fmt.Errorf("position: %w", ErrRecordingNotPlaying)
	}
	if p.BPM <= 0 || math.IsNaN(p.BPM) || math.IsInf(p.BPM, 0) {
		return fmt.Errorf("position: %w: %v bpm", ErrInvalidTempo, p.BPM)
	}
	if p.TimeSigNumerator <= 0 || p.TimeSigDenominator <= 0 {
		return fmt.Errorf("position: %w: %d/%d", ErrInvalidTimeSignature,
			p.TimeSigNumerator, p.TimeSigDenominator)
	}
	if p.IsLooping && p.PPQLoopEnd <= p.PPQLoopStart {
		return fmt.Errorf("position: %w: [%v, %v)", ErrInvalidLoop, p.PPQLoopStart, p.PPQLoopEnd)
	}
	return nil
}

// QuarterNotesPerBar returns the bar length in quarter notes, or 0 if the
// time signature is not valid.
func (p PositionInfo) QuarterNotesPerBar() float64 {
	if p.TimeSigNumerator <= 0 || p.TimeSigDenominator <= 0 {
		return 0
	}
	return float64(p.TimeSigNumerator) * 4 / float64(p.TimeSigDenominator)
}

// BarBeat converts the PPQ position to a 1-based bar and beat, where beats
// are counted in units of the time signature denominator, and the fraction
// of the current beat that has elapsed. When the host did not supply the
// last bar start it is derived from the PPQ position.
func (p PositionInfo) BarBeat() (bar, beat int64, tick float64) {
	qpb := p.QuarterNotesPerBar()
	if qpb == 0 {
		return 1, 1, 0
	}

	barStart := p.PPQPositionOfLastBarStart
	if barStart == 0 && p.PPQPosition >= qpb {
		barStart = math.Floor(p.PPQPosition/qpb) * qpb
	}

	beatLength := 4 / float64(p.TimeSigDenominator)
	beats := (p.PPQPosition - barStart) / beatLength
	whole := math.Floor(beats)

	bar = int64(math.Floor(barStart/qpb)) + 1
	beat = int64(whole) + 1
	tick = beats - whole
	return bar, beat, tick
}

// Duration returns TimeInSeconds as a time.Duration.
func (p PositionInfo) Duration() time.Duration {
	return time.Duration(p.TimeInSeconds * float64(time.Second))
}

// Timecode formats TimeInSeconds+EditOriginTime as HH:MM:SS:FF. Drop-frame
// rates use ';' before the frame field. With an unknown frame rate only
// HH:MM:SS is returned.
func (p PositionInfo) Timecode() string {
	seconds := p.TimeInSeconds + p.EditOriginTime

	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}

	nominal := p.FrameRate.NominalFrames()
	if nominal == 0 {
		total := int64(seconds)
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, total/3600, (total/60)%60, total%60)
	}

	frames := int64(seconds * p.FrameRate.FramesPerSecond())
	separator := ":"
	if p.FrameRate.IsDrop() {
		frames = dropFrameLabel(frames, int64(nominal))
		separator = ";"
	}

	n := int64(nominal)
	return fmt.Sprintf("%s%02d:%02d:%02d%s%02d", sign,
		frames/(n*3600), (frames/(n*60))%60, (frames/n)%60, separator, frames%n)
}

// dropFrameLabel maps a real frame count to the frame number its drop-frame
// label encodes. Each minute skips nominal/15 labels except every tenth.
func dropFrameLabel(frames, nominal int64) int64 {
	drop := nominal / 15
	perMinute := nominal*60 - drop
	perTenMinutes := nominal*600 - drop*9

	tens := frames / perTenMinutes
	rem := frames % perTenMinutes

	frames += drop * 9 * tens
	if rem > drop {
		frames += drop * ((rem - drop) / perMinute)
	}
	return frames
}
