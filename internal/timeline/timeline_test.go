// SPDX-License-Identifier: MIT
package timeline

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"playhead/pkg/playhead"
)

const (
	testSampleRate = 48000
	testFrames     = 480 // 10ms at 48kHz
)

func newTestTimeline(t *testing.T) *Timeline {
	t.Helper()
	tl, err := New(DefaultConfig(testSampleRate))
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return tl
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"NaN sample rate", func(c *Config) { c.SampleRate = math.NaN() }},
		{"zero tempo", func(c *Config) { c.BPM = 0 }},
		{"infinite tempo", func(c *Config) { c.BPM = math.Inf(1) }},
		{"zero numerator", func(c *Config) { c.TimeSigNumerator = 0 }},
		{"negative denominator", func(c *Config) { c.TimeSigDenominator = -4 }},
		{"empty loop", func(c *Config) {
			c.Looping = true
			c.LoopStartPPQ = 4
			c.LoopEndPPQ = 4
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testSampleRate)
			tt.mutate(&cfg)
			_, err := New(cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestUnavailableBeforeFirstBlock(t *testing.T) {
	tl := newTestTimeline(t)

	if _, ok := tl.CurrentPosition(); ok {
		t.Fatal("CurrentPosition() should be unavailable before the first block")
	}

	tl.BeginBlock(testFrames)
	pos, ok := tl.CurrentPosition()
	if !ok {
		t.Fatal("CurrentPosition() should be available after BeginBlock")
	}
	if pos.TimeInSamples != 0 || pos.IsPlaying {
		t.Errorf("first snapshot = %+v, want stopped at zero", pos)
	}
	if err := pos.Validate(); err != nil {
		t.Errorf("first snapshot invalid: %v", err)
	}
}

func TestStoppedTimelineDoesNotAdvance(t *testing.T) {
	tl := newTestTimeline(t)
	for range 10 {
		tl.BeginBlock(testFrames)
	}
	pos, _ := tl.CurrentPosition()
	if pos.TimeInSamples != 0 || pos.PPQPosition != 0 {
		t.Errorf("stopped timeline moved to samples=%d ppq=%v", pos.TimeInSamples, pos.PPQPosition)
	}
	if tl.Blocks() != 10 {
		t.Errorf("Blocks() = %d, want 10", tl.Blocks())
	}
}

func TestPlaybackAdvancesPerBlock(t *testing.T) {
	tl := newTestTimeline(t)
	tl.TransportPlay(true)

	// The snapshot describes the start of the block, so block n starts at
	// n*frames samples.
	for n := range 100 {
		pos := tl.BeginBlock(testFrames)
		wantSamples := int64(n * testFrames)
		if pos.TimeInSamples != wantSamples {
			t.Fatalf("block %d: TimeInSamples = %d, want %d", n, pos.TimeInSamples, wantSamples)
		}
		if !pos.IsPlaying {
			t.Fatalf("block %d: IsPlaying = false", n)
		}
	}

	pos := tl.BeginBlock(testFrames)
	// 100 blocks of 10ms = 1s; at 120 BPM that is 2 quarter notes.
	if !approxEqual(pos.TimeInSeconds, 1) {
		t.Errorf("TimeInSeconds = %v, want 1", pos.TimeInSeconds)
	}
	if !approxEqual(pos.PPQPosition, 2) {
		t.Errorf("PPQPosition = %v, want 2", pos.PPQPosition)
	}
}

func TestLastBarStart(t *testing.T) {
	cfg := DefaultConfig(testSampleRate)
	cfg.TimeSigNumerator = 3
	cfg.TimeSigDenominator = 4
	tl, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	tl.TransportPlay(true)

	// 3.75s at 120 BPM = 7.5 quarter notes; bars of 3 put the bar start at 6.
	for range 375 {
		tl.BeginBlock(testFrames)
	}
	pos := tl.BeginBlock(testFrames)
	if !approxEqual(pos.PPQPosition, 7.5) {
		t.Fatalf("PPQPosition = %v, want 7.5", pos.PPQPosition)
	}
	if pos.PPQPositionOfLastBarStart != 6 {
		t.Errorf("PPQPositionOfLastBarStart = %v, want 6", pos.PPQPositionOfLastBarStart)
	}
	bar, beat, _ := pos.BarBeat()
	if bar != 3 || beat != 2 {
		t.Errorf("BarBeat() = %d.%d, want 3.2", bar, beat)
	}
}

func TestRecordImpliesPlay(t *testing.T) {
	tl := newTestTimeline(t)

	tl.TransportRecord(true)
	pos := tl.BeginBlock(testFrames)
	if !pos.IsRecording || !pos.IsPlaying {
		t.Fatalf("after record(true): playing=%v recording=%v, want both", pos.IsPlaying, pos.IsRecording)
	}

	tl.TransportRecord(false)
	pos = tl.BeginBlock(testFrames)
	if pos.IsRecording || !pos.IsPlaying {
		t.Errorf("after record(false): playing=%v recording=%v, want playing only", pos.IsPlaying, pos.IsRecording)
	}

	tl.TransportRecord(true)
	tl.TransportPlay(false)
	pos = tl.BeginBlock(testFrames)
	if pos.IsRecording || pos.IsPlaying {
		t.Errorf("after play(false): playing=%v recording=%v, want neither", pos.IsPlaying, pos.IsRecording)
	}
}

func TestCommandsApplyInOrderWithinABlock(t *testing.T) {
	tl := newTestTimeline(t)

	tl.TransportPlay(true)
	tl.TransportRecord(true)
	tl.TransportRecord(false)

	pos := tl.BeginBlock(testFrames)
	if !pos.IsPlaying || pos.IsRecording {
		t.Errorf("playing=%v recording=%v, want last command to win", pos.IsPlaying, pos.IsRecording)
	}
}

func TestRewind(t *testing.T) {
	tl := newTestTimeline(t)
	tl.TransportPlay(true)
	for range 50 {
		tl.BeginBlock(testFrames)
	}

	tl.TransportRewind()
	pos := tl.BeginBlock(testFrames)
	if pos.TimeInSamples != 0 || pos.PPQPosition != 0 {
		t.Errorf("after rewind: samples=%d ppq=%v, want 0", pos.TimeInSamples, pos.PPQPosition)
	}
	if !pos.IsPlaying {
		t.Error("rewind must not stop playback")
	}

	pos = tl.BeginBlock(testFrames)
	if pos.TimeInSamples != testFrames {
		t.Errorf("block after rewind: samples=%d, want %d", pos.TimeInSamples, testFrames)
	}
}

func TestLoopWrapsInsideRange(t *testing.T) {
	tl := newTestTimeline(t)
	if err := tl.SetLoopRange(1, 2); err != nil {
		t.Fatal(err)
	}
	if err := tl.SetLooping(true); err != nil {
		t.Fatal(err)
	}
	tl.TransportPlay(true)

	wrapped := false
	previous := -1.0
	for n := range 500 {
		pos := tl.BeginBlock(testFrames)
		if !pos.IsLooping {
			t.Fatalf("block %d: IsLooping = false", n)
		}
		if pos.PPQPosition >= 2 {
			t.Fatalf("block %d: PPQPosition %v escaped loop end", n, pos.PPQPosition)
		}
		if pos.PPQPosition < previous {
			wrapped = true
			if pos.PPQPosition < 1 {
				t.Fatalf("block %d: wrapped to %v, before loop start", n, pos.PPQPosition)
			}
		}
		previous = pos.PPQPosition
	}
	if !wrapped {
		t.Error("play head never wrapped")
	}
}

func TestLoopWrapRestoresSamplesAfterTempoChange(t *testing.T) {
	tl := newTestTimeline(t)
	if err := tl.SetLoopRange(2, 6); err != nil {
		t.Fatal(err)
	}
	if err := tl.SetLooping(true); err != nil {
		t.Fatal(err)
	}
	tl.TransportPlay(true)
	for range 150 { // 120 BPM: loop start at sample 48000, ppq 3 after
		tl.BeginBlock(testFrames)
	}
	if err := tl.SetTempo(60); err != nil {
		t.Fatal(err)
	}

	wraps := 0
	previous := tl.BeginBlock(testFrames)
	for range 1000 {
		pos := tl.BeginBlock(testFrames)
		if pos.PPQPosition < previous.PPQPosition {
			wraps++
			// At 60 BPM one quarter note is one second.
			want := int64(testSampleRate) + int64(math.Round((pos.PPQPosition-2)*testSampleRate))
			if d := pos.TimeInSamples - want; d < -1 || d > 1 {
				t.Fatalf("wrap %d: TimeInSamples = %d, want %d (ppq %v)", wraps, pos.TimeInSamples, want, pos.PPQPosition)
			}
		}
		previous = pos
	}
	if wraps < 2 {
		t.Fatalf("wraps = %d, want at least 2", wraps)
	}
}

func TestSetLoopingRejectsEmptyRange(t *testing.T) {
	tl := newTestTimeline(t)
	if err := tl.SetLooping(true); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetLooping(true) with empty range error = %v, want ErrInvalidConfig", err)
	}
	if tl.Looping() {
		t.Error("Looping() should stay false after a rejected request")
	}
	if err := tl.SetLoopRange(3, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetLoopRange(3, 1) error = %v, want ErrInvalidConfig", err)
	}
}

func TestTempoChangeKeepsPPQContinuous(t *testing.T) {
	tl := newTestTimeline(t)
	tl.TransportPlay(true)
	for range 100 {
		tl.BeginBlock(testFrames)
	}
	before := tl.BeginBlock(testFrames) // ppq 2, advances to 2.02

	if err := tl.SetTempo(60); err != nil {
		t.Fatal(err)
	}
	after := tl.BeginBlock(testFrames)
	if !approxEqual(after.PPQPosition, before.PPQPosition+0.02) {
		t.Errorf("PPQ jumped across tempo change: %v -> %v", before.PPQPosition, after.PPQPosition)
	}
	if after.BPM != 60 {
		t.Errorf("BPM = %v, want 60", after.BPM)
	}

	next := tl.BeginBlock(testFrames)
	if !approxEqual(next.PPQPosition-after.PPQPosition, 0.01) {
		t.Errorf("PPQ step at 60 BPM = %v, want 0.01", next.PPQPosition-after.PPQPosition)
	}
	if tl.Tempo() != 60 {
		t.Errorf("Tempo() = %v, want 60", tl.Tempo())
	}
	if err := tl.SetTempo(-1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetTempo(-1) error = %v, want ErrInvalidConfig", err)
	}
}

func TestSetTimeSignature(t *testing.T) {
	tl := newTestTimeline(t)
	if err := tl.SetTimeSignature(7, 8); err != nil {
		t.Fatal(err)
	}
	pos := tl.BeginBlock(testFrames)
	if pos.TimeSigNumerator != 7 || pos.TimeSigDenominator != 8 {
		t.Errorf("time signature = %d/%d, want 7/8", pos.TimeSigNumerator, pos.TimeSigDenominator)
	}
	if err := tl.SetTimeSignature(0, 4); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetTimeSignature(0, 4) error = %v, want ErrInvalidConfig", err)
	}
}

func TestSnapshotCarriesConfig(t *testing.T) {
	cfg := DefaultConfig(44100)
	cfg.FrameRate = playhead.FPS2997Drop
	cfg.EditOriginTime = 3600
	tl, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	pos := tl.BeginBlock(512)
	if pos.FrameRate != playhead.FPS2997Drop || pos.EditOriginTime != 3600 {
		t.Errorf("snapshot = %+v, want configured frame rate and origin", pos)
	}
	if tl.SampleRate() != 44100 {
		t.Errorf("SampleRate() = %v, want 44100", tl.SampleRate())
	}
	if pos.Timecode() != "01:00:00;00" {
		t.Errorf("Timecode() = %q, want 01:00:00;00", pos.Timecode())
	}
}

// TestRandomCommandsKeepInvariants drives the timeline with random transport
// commands and checks every published snapshot.
func TestRandomCommandsKeepInvariants(t *testing.T) {
	tl := newTestTimeline(t)
	if err := tl.SetLoopRange(0, 8); err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))

	for n := range 5000 {
		switch rng.Intn(8) {
		case 0:
			tl.TransportPlay(true)
		case 1:
			tl.TransportPlay(false)
		case 2:
			tl.TransportRecord(true)
		case 3:
			tl.TransportRecord(false)
		case 4:
			tl.TransportRewind()
		case 5:
			_ = tl.SetLooping(rng.Intn(2) == 0)
		case 6:
			_ = tl.SetTempo(60 + rng.Float64()*120)
		}

		pos := tl.BeginBlock(64 + rng.Intn(1024))
		if err := pos.Validate(); err != nil {
			t.Fatalf("block %d: invalid snapshot %+v: %v", n, pos, err)
		}
		if pos.IsRecording && !pos.IsPlaying {
			t.Fatalf("block %d: recording while stopped", n)
		}
		if pos.IsLooping && pos.PPQPosition >= pos.PPQLoopEnd {
			t.Fatalf("block %d: PPQ %v outside loop end %v", n, pos.PPQPosition, pos.PPQLoopEnd)
		}
		published, ok := tl.CurrentPosition()
		if !ok || !published.Equal(pos) {
			t.Fatalf("block %d: CurrentPosition() diverged from BeginBlock result", n)
		}
	}
}

func TestConcurrentReaders(t *testing.T) {
	tl := newTestTimeline(t)
	tl.TransportRecord(true)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				pos, ok := tl.CurrentPosition()
				if !ok {
					continue
				}
				// Samples and seconds are written together; a torn read
				// would break their relationship.
				if !approxEqual(pos.TimeInSeconds, float64(pos.TimeInSamples)/testSampleRate) {
					t.Errorf("torn snapshot: samples=%d seconds=%v", pos.TimeInSamples, pos.TimeInSeconds)
					return
				}
				if pos.IsRecording && !pos.IsPlaying {
					t.Error("recording while stopped")
					return
				}
			}
		}()
	}

	for range 20000 {
		tl.BeginBlock(testFrames)
	}
	close(done)
	wg.Wait()
}

func TestBeginBlockZeroAllocs(t *testing.T) {
	tl := newTestTimeline(t)
	tl.TransportPlay(true)
	tl.BeginBlock(testFrames)

	allocs := testing.AllocsPerRun(1000, func() {
		_ = tl.BeginBlock(testFrames)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in BeginBlock, got %.1f", allocs)
	}
}

func BenchmarkBeginBlock(b *testing.B) {
	tl, _ := New(DefaultConfig(testSampleRate))
	tl.TransportPlay(true)
	b.ReportAllocs()
	for b.Loop() {
		tl.BeginBlock(testFrames)
	}
}

func BenchmarkCurrentPosition(b *testing.B) {
	tl, _ := New(DefaultConfig(testSampleRate))
	tl.BeginBlock(testFrames)
	b.ReportAllocs()
	for b.Loop() {
		tl.CurrentPosition()
	}
}
