// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	"github.com/google/uuid"

	"playhead/pkg/playhead"
)

// Transport defines a generic interface for sending published data or events.
// Implementations must be safe for concurrent use and must never be called
// from the audio callback.
type Transport interface {
	Send(data any) error
	Close() error
}

// PositionMessage is one published play head reading.
type PositionMessage struct {
	Session   uuid.UUID             `json:"session"`   // Identifies the feed instance.
	Sequence  uint32                `json:"sequence"`  // Increments per message, starting at 1.
	Timestamp int64                 `json:"timestamp"` // Wall clock, nanoseconds since epoch.
	Available bool                  `json:"available"` // False when the play head had no position.
	Position  playhead.PositionInfo `json:"position"`  // Zero when Available is false.
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Multi sends every message to all of its transports.
type Multi []Transport

// Send forwards data to each transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes each transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
