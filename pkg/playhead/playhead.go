// SPDX-License-Identifier: MIT
/*
Package playhead defines how an audio host tells a processing component where
playback stands.

A processor holds zero or one PlayHead and calls CurrentPosition once per
processing block. The returned PositionInfo is a copy that describes the start
of that block. When the boolean result is false there is no timing context and
the snapshot must not be read.

Transport control is optional. Providers that cannot drive the transport
embed NoTransportControl, which reports CanControlTransport() == false and
turns TransportPlay, TransportRecord and TransportRewind into no-ops:

	type fixed struct {
		playhead.NoTransportControl
		pos playhead.PositionInfo
	}

	func (f *fixed) CurrentPosition() (playhead.PositionInfo, bool) {
		return f.pos, true
	}

The interface itself provides no synchronization. Whether CurrentPosition may
be called off the audio thread is up to the provider; the host timeline in
this module publishes snapshots so that it can.
*/
package playhead

// PlayHead supplies the position and state of a moving play head.
type PlayHead interface {
	// CurrentPosition returns the transport position at the start of the
	// current processing block. If ok is false no position is available and
	// the returned value is undefined.
	CurrentPosition() (pos PositionInfo, ok bool)

	// CanControlTransport reports whether the transport methods below have
	// any effect.
	CanControlTransport() bool

	// TransportPlay starts or stops playback.
	TransportPlay(shouldStartPlaying bool)

	// TransportRecord starts or stops recording. Recording implies playing,
	// so providers must keep IsRecording => IsPlaying in later snapshots.
	TransportRecord(shouldStartRecording bool)

	// TransportRewind moves the play head back to the start of the edit.
	TransportRewind()
}

// NoTransportControl provides the default, read-only transport behaviour.
// Embed it in providers that only report position.
type NoTransportControl struct{}

func (NoTransportControl) CanControlTransport() bool { return false }
func (NoTransportControl) TransportPlay(bool)        {}
func (NoTransportControl) TransportRecord(bool)      {}
func (NoTransportControl) TransportRewind()          {}

// Query returns ph's current position, treating a nil PlayHead as
// unavailable.
func Query(ph PlayHead) (PositionInfo, bool) {
	if ph == nil {
		return PositionInfo{}, false
	}
	return ph.CurrentPosition()
}

// Static is a PlayHead that always reports the same position. It is used for
// offline rendering and in tests.
type Static struct {
	NoTransportControl
	Position  PositionInfo
	Available bool
}

// NewStatic returns a Static provider reporting pos as available.
func NewStatic(pos PositionInfo) *Static {
	return &Static{Position: pos, Available: true}
}

func (s *Static) CurrentPosition() (PositionInfo, bool) {
	return s.Position, s.Available
}

// Unavailable returns a PlayHead that never has a timing context.
func Unavailable() PlayHead {
	return &Static{}
}

// PositionFunc adapts a function to a read-only PlayHead.
type PositionFunc func() (PositionInfo, bool)

func (f PositionFunc) CurrentPosition() (PositionInfo, bool) { return f() }
func (PositionFunc) CanControlTransport() bool                { return false }
func (PositionFunc) TransportPlay(bool)                       {}
func (PositionFunc) TransportRecord(bool)                     {}
func (PositionFunc) TransportRewind()                         {}

type readOnly struct {
	NoTransportControl
	ph PlayHead
}

func (r readOnly) CurrentPosition() (PositionInfo, bool) { return Query(r.ph) }

// WithoutTransportControl wraps ph so that position queries pass through
// but transport control falls back to the NoTransportControl defaults.
func WithoutTransportControl(ph PlayHead) PlayHead {
	if _, ok := ph.(readOnly); ok {
		return ph
	}
	return readOnly{ph: ph}
}

var (
	_ PlayHead = (*Static)(nil)
	_ PlayHead = PositionFunc(nil)
	_ PlayHead = readOnly{}
)
