// SPDX-License-Identifier: MIT
package analysis

import "playhead/pkg/playhead"

// Processor is called once per block from the audio callback with the
// interleaved input and the host's play head. Implementations must not
// block or allocate, and must treat the position as valid for this block
// only. ph may be nil when the host has no transport.
type Processor interface {
	Process(buffer []int32, ph playhead.PlayHead)
}

// ClosableProcessor combines Processor with a Close method for resource cleanup.
type ClosableProcessor interface {
	Processor
	Close() error
}
