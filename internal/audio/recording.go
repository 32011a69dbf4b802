// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by StartRecording while a file is open.
var ErrAlreadyRecording = errors.New("already recording")

// recorder writes input blocks to a WAV file. The control goroutine opens
// and closes files under mu; the audio callback only ever TryLocks it, so
// a block is skipped rather than waiting for a file operation.
type recorder struct {
	sampleRate int
	channels   int
	bitDepth   int

	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
	path      string

	armed     atomic.Bool
	bytes     atomic.Int64
	skipped   atomic.Uint64
	writeErrs atomic.Uint64
}

func newRecorder(sampleRate float64, channels, bitDepth, maxSamples int) *recorder {
	return &recorder{
		sampleRate: int(sampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(sampleRate),
			},
			Data:           make([]int, maxSamples),
			SourceBitDepth: bitDepth,
		},
	}
}

func (r *recorder) start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return fmt.Errorf("%w to %s", ErrAlreadyRecording, r.path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	r.file = file
	r.path = path
	r.encoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, r.channels, 1)
	r.bytes.Store(0)
	r.armed.Store(true)
	return nil
}

// stop closes the current file and returns its path. Without an open file
// it returns "" and no error.
func (r *recorder) stop() (string, error) {
	r.armed.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return "", nil
	}
	path := r.path
	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	r.encoder = nil
	r.file = nil
	r.path = ""
	if err := errors.Join(encErr, fileErr); err != nil {
		return path, fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return path, nil
}

// write appends one interleaved block. Audio thread only; never blocks.
func (r *recorder) write(buffer []int32) {
	if !r.armed.Load() {
		return
	}
	if !r.mu.TryLock() {
		r.skipped.Add(1)
		return
	}
	defer r.mu.Unlock()
	if r.encoder == nil {
		return
	}

	n := min(len(buffer), cap(r.sampleBuf.Data))
	data := r.sampleBuf.Data[:n]
	shift := 32 - r.bitDepth
	for i, sample := range buffer[:n] {
		data[i] = int(sample >> shift)
	}
	r.sampleBuf.Data = data

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		r.writeErrs.Add(1)
		return
	}
	r.bytes.Add(int64(n * r.bitDepth / 8))
}

func (r *recorder) recording() (path string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path, r.file != nil
}

// recordingName returns a file name in dir that does not exist yet.
func recordingName(dir string, now time.Time) string {
	base := "recording-" + now.UTC().Format("02-01-2006-150405")
	name := filepath.Join(dir, base+".wav")
	for i := 1; ; i++ {
		if _, err := os.Stat(name); err != nil {
			return name
		}
		name = filepath.Join(dir, fmt.Sprintf("%s-%d.wav", base, i))
	}
}

// StartRecording opens path and writes every block the transport records
// into it. An empty path picks a timestamped name in recording.output_dir.
func (e *Engine) StartRecording(path string) error {
	if path == "" {
		path = recordingName(e.config.Recording.OutputDir, time.Now())
	}
	if err := e.rec.start(path); err != nil {
		return err
	}
	engineLog.Infof("Recording to %s (%d-bit, %d channels)", path, e.rec.bitDepth, e.rec.channels)
	return nil
}

// StopRecording finalizes the open file, if any, and returns its path.
func (e *Engine) StopRecording() (string, error) {
	path, err := e.rec.stop()
	if path != "" && err == nil {
		engineLog.Infof("Recording saved to %s (%d bytes)", path, e.rec.bytes.Load())
	}
	if n := e.rec.writeErrs.Swap(0); n > 0 {
		engineLog.Warnf("%d blocks failed to write to %s", n, path)
	}
	return path, err
}

// Recording returns the path of the open recording, if any.
func (e *Engine) Recording() (string, bool) {
	return e.rec.recording()
}

// RecordedBytes returns the audio bytes written to the current file.
func (e *Engine) RecordedBytes() int64 {
	return e.rec.bytes.Load()
}
