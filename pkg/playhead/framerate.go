// SPDX-License-Identifier: MIT
package playhead

import (
	"fmt"
	"strings"
)

// FrameRate identifies the video frame rate a host reports for timecode.
// The numeric values are stable and are used on the wire.
type FrameRate int32

const (
	FPS24       FrameRate = 0
	FPS25       FrameRate = 1
	FPS2997     FrameRate = 2
	FPS30       FrameRate = 3
	FPS2997Drop FrameRate = 4
	FPS30Drop   FrameRate = 5
	FPS60       FrameRate = 6
	FPS60Drop   FrameRate = 7
	FPSUnknown  FrameRate = 99
)

// String returns the canonical name used in config files and feeds.
func (f FrameRate) String() string {
	switch f {
	case FPS24:
		return "24"
	case FPS25:
		return "25"
	case FPS2997:
		return "29.97"
	case FPS30:
		return "30"
	case FPS2997Drop:
		return "29.97drop"
	case FPS30Drop:
		return "30drop"
	case FPS60:
		return "60"
	case FPS60Drop:
		return "60drop"
	default:
		return "unknown"
	}
}

// ParseFrameRate converts a name such as "25", "29.97-drop" or "30 drop"
// (case-insensitive) to a FrameRate. Returns FPSUnknown and false if the
// name is not recognized.
func ParseFrameRate(s string) (FrameRate, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("-", "", " ", "", "fps", "").Replace(name)

	switch name {
	case "24":
		return FPS24, true
	case "25":
		return FPS25, true
	case "29.97":
		return FPS2997, true
	case "30":
		return FPS30, true
	case "29.97drop":
		return FPS2997Drop, true
	case "30drop":
		return FPS30Drop, true
	case "60":
		return FPS60, true
	case "60drop":
		return FPS60Drop, true
	default:
		return FPSUnknown, false
	}
}

// FramesPerSecond returns the real frame rate in frames per second.
// FPS2997Drop and FPS60Drop run at nominal*1000/1001. FPS30Drop runs at a
// true 30 with drop-frame labels. Returns 0 for FPSUnknown.
func (f FrameRate) FramesPerSecond() float64 {
	switch f {
	case FPS24:
		return 24
	case FPS25:
		return 25
	case FPS2997, FPS2997Drop:
		return 30000.0 / 1001.0
	case FPS30, FPS30Drop:
		return 30
	case FPS60Drop:
		return 60000.0 / 1001.0
	case FPS60:
		return 60
	default:
		return 0
	}
}

// NominalFrames returns the frame count a timecode second is labelled with
// (30 for 29.97). Returns 0 for FPSUnknown.
func (f FrameRate) NominalFrames() int {
	switch f {
	case FPS24:
		return 24
	case FPS25:
		return 25
	case FPS2997, FPS30, FPS2997Drop, FPS30Drop:
		return 30
	case FPS60, FPS60Drop:
		return 60
	default:
		return 0
	}
}

// IsDrop reports whether the rate uses drop-frame timecode labelling.
func (f FrameRate) IsDrop() bool {
	return f == FPS2997Drop || f == FPS30Drop || f == FPS60Drop
}

// IsKnown reports whether f is one of the defined rates other than FPSUnknown.
func (f FrameRate) IsKnown() bool {
	return f.NominalFrames() != 0
}

// MarshalText implements encoding.TextMarshaler.
func (f FrameRate) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "unknown" is accepted
// and maps to FPSUnknown; any other unrecognized name is an error.
func (f *FrameRate) UnmarshalText(text []byte) error {
	rate, ok := ParseFrameRate(string(text))
	if !ok && !strings.EqualFold(strings.TrimSpace(string(text)), "unknown") {
		return fmt.Errorf("unknown frame rate %q", string(text))
	}
	*f = rate
	return nil
}
