// SPDX-License-Identifier: MIT
/*
Package audio hosts real-time processors on a PortAudio input stream and
drives the transport timeline from it:
  - Every callback starts a timeline block, runs the processors with the
    host's play head, then records the block if the transport is recording.
  - Transport commands from the UI or processors take effect at the next
    block boundary.
  - WAV files are opened and closed off the audio thread.

Thread Safety:
  - Pre-allocates buffers to avoid GC in the hot path
  - Locks OS thread during audio processing
  - The callback never waits on a lock
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"playhead/internal/analysis"
	"playhead/internal/config"
	applog "playhead/internal/log"
	"playhead/internal/timeline"
	"playhead/pkg/playhead"
)

// ErrNoInputDevice is returned by StartInputStream on an engine created
// without a device.
var ErrNoInputDevice = errors.New("engine has no input device")

var engineLog = applog.New("Engine")

type Engine struct {
	config   *config.Config
	channels int

	timeline   *timeline.Timeline
	processors []analysis.Processor
	control    *enginePlayHead   // full transport control for the host
	procHead   playhead.PlayHead // what processors and the UI see

	// Audio input handling.
	inputBuffer  []int32
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	callbacks    atomic.Uint64

	rec *recorder

	commands  chan command
	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewEngine opens the configured input device and prepares the hot path.
// PortAudio must be initialized.
func NewEngine(cfg *config.Config, tl *timeline.Timeline, processors ...analysis.Processor) (*Engine, error) {
	device, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, tl, device, processors...)
}

// NewOfflineEngine prepares an engine with no device, driven by Simulate.
func NewOfflineEngine(cfg *config.Config, tl *timeline.Timeline, processors ...analysis.Processor) (*Engine, error) {
	return newEngine(cfg, tl, nil, processors...)
}

func newEngine(cfg *config.Config, tl *timeline.Timeline, device *portaudio.DeviceInfo, processors ...analysis.Processor) (*Engine, error) {
	if tl == nil {
		return nil, errors.New("engine: timeline cannot be nil")
	}
	if tl.SampleRate() != cfg.Audio.SampleRate {
		return nil, fmt.Errorf("engine: timeline runs at %.0f Hz, audio at %.0f Hz", tl.SampleRate(), cfg.Audio.SampleRate)
	}

	channels := cfg.Audio.InputChannels
	inputSize := cfg.Audio.FramesPerBuffer * channels

	e := &Engine{
		config:      cfg,
		channels:    channels,
		timeline:    tl,
		processors:  processors,
		inputBuffer: make([]int32, inputSize),
		inputDevice: device,
		rec:         newRecorder(cfg.Audio.SampleRate, channels, cfg.Recording.BitDepth, inputSize),
		commands:    make(chan command, commandQueue),
		done:        make(chan struct{}),
	}
	e.control = &enginePlayHead{e: e}
	e.procHead = e.control
	if !cfg.Transport.AllowControl {
		e.procHead = playhead.WithoutTransportControl(e.control)
	}

	if device != nil {
		if cfg.Audio.LowLatency {
			e.inputLatency = device.DefaultLowInputLatency
		} else {
			e.inputLatency = device.DefaultHighInputLatency
		}
		engineLog.Infof("Using input %q (%d channels, %.0f Hz, %d frames, latency %s)",
			device.Name, channels, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer, e.inputLatency)
	}

	e.wg.Add(1)
	go e.runControl()
	return e, nil
}

// PlayHead returns the play head handed to processors. It refuses
// transport control when transport.allow_control is off.
func (e *Engine) PlayHead() playhead.PlayHead {
	return e.procHead
}

// Control returns a play head with transport control regardless of
// configuration, for the host itself.
func (e *Engine) Control() playhead.PlayHead {
	return e.control
}

// Timeline returns the transport the engine drives.
func (e *Engine) Timeline() *timeline.Timeline {
	return e.timeline
}

// Callbacks returns the number of blocks processed.
func (e *Engine) Callbacks() uint64 {
	return e.callbacks.Load()
}

func (e *Engine) StartInputStream() error {
	if e.inputDevice == nil {
		return ErrNoInputDevice
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}
	engineLog.Infof("Input stream started")
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}
		if err := e.inputStream.Close(); err != nil {
			return err
		}
		e.inputStream = nil
		engineLog.Infof("Input stream stopped after %d blocks", e.Callbacks())
	}
	return nil
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(e.inputBuffer, in)
	buffer := e.inputBuffer[:n]

	pos := e.timeline.BeginBlock(n / e.channels)
	for _, p := range e.processors {
		p.Process(buffer, e.procHead)
	}
	if pos.IsRecording {
		e.rec.write(buffer)
	}
	e.callbacks.Add(1)
}

// Close stops the input stream, finalizes any recording and ends the
// control goroutine. Transport commands issued afterwards are ignored.
func (e *Engine) Close() error {
	streamErr := e.StopInputStream()
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
	_, recErr := e.StopRecording()
	if n := e.dropped.Load(); n > 0 {
		engineLog.Warnf("Dropped %d transport commands", n)
	}
	return errors.Join(streamErr, recErr)
}

// enginePlayHead reads the timeline and forwards transport commands to
// the engine's control goroutine, so processors may call it from the
// audio callback.
type enginePlayHead struct {
	e *Engine
}

func (h *enginePlayHead) CurrentPosition() (playhead.PositionInfo, bool) {
	return h.e.timeline.CurrentPosition()
}

func (h *enginePlayHead) CanControlTransport() bool {
	return true
}

func (h *enginePlayHead) TransportPlay(shouldStartPlaying bool) {
	if shouldStartPlaying {
		h.e.enqueue(command{kind: cmdPlay})
	} else {
		h.e.enqueue(command{kind: cmdStop})
	}
}

func (h *enginePlayHead) TransportRecord(shouldStartRecording bool) {
	if shouldStartRecording {
		h.e.enqueue(command{kind: cmdRecord})
	} else {
		h.e.enqueue(command{kind: cmdStopRecord})
	}
}

func (h *enginePlayHead) TransportRewind() {
	h.e.enqueue(command{kind: cmdRewind})
}

var _ playhead.PlayHead = (*enginePlayHead)(nil)
