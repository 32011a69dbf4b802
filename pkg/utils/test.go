// SPDX-License-Identifier: MIT
//
// Package utils holds fixtures shared by tests across the module: a
// recording transport and synthetic input signals.
package utils

import (
	"math"
	"sync"
)

// MockTransport records every message sent to it. It is safe for
// concurrent use.
type MockTransport struct {
	mu       sync.Mutex
	messages []any
	closed   bool
	Err      error // returned from Send when set
}

// Send stores msg for later inspection instead of transmitting it.
func (m *MockTransport) Send(msg any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.messages))
	copy(out, m.messages)
	return out
}

// Last returns the most recent message, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

// GenerateComplexWave returns a 440Hz tone with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int32(signal * math.MaxInt32 * 0.9)
	}
	return buffer
}

// GenerateSineWave returns a sine at frequency with 0.9 full-scale amplitude.
func GenerateSineWave(size int, sampleRate, frequency float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int32(math.Sin(2*math.Pi*frequency*t) * math.MaxInt32 * 0.9)
	}
	return buffer
}

// GenerateConstant returns size samples all equal to value.
func GenerateConstant(size int, value int32) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}
