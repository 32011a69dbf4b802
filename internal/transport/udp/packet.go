// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	applog "playhead/internal/log"
	"playhead/internal/transport"
	"playhead/pkg/playhead"
)

/*
UDP Packet Structure (BigEndian), one PositionMessage per datagram.

+-----------------------------------------------------------------------------+
| Field              | Data Type  | Size (Bytes) | Description                |
|--------------------|------------|--------------|----------------------------|
| Magic              | [4]byte    | 4            | "PHD1"                     |
| Version            | uint8      | 1            | PacketVersion              |
| Flags              | uint8      | 1            | bit0 available, bit1 play, |
|                    |            |              | bit2 record, bit3 loop     |
| Frame Rate         | uint8      | 1            | playhead.FrameRate value   |
| Reserved           | uint8      | 1            | zero                       |
| Sequence Number    | uint32     | 4            | From the feed              |
| Timestamp          | int64      | 8            | Nanoseconds since epoch    |
| Session            | [16]byte   | 16           | Feed UUID                  |
| BPM                | float64    | 8            |                            |
| Time Sig Numerator | int32      | 4            |                            |
| Time Sig Denom.    | int32      | 4            |                            |
| Time In Samples    | int64      | 8            |                            |
| Time In Seconds    | float64    | 8            |                            |
| Edit Origin Time   | float64    | 8            | Seconds                    |
| PPQ Position       | float64    | 8            |                            |
| PPQ Last Bar Start | float64    | 8            |                            |
| PPQ Loop Start     | float64    | 8            |                            |
| PPQ Loop End       | float64    | 8            |                            |
+-----------------------------------------------------------------------------+

Total: PacketSize (108) bytes.
*/

// PacketVersion is bumped whenever the layout changes.
const PacketVersion = 1

// PacketSize is the encoded length of every packet.
const PacketSize = 108

var packetMagic = [4]byte{'P', 'H', 'D', '1'}

const (
	flagAvailable uint8 = 1 << iota
	flagPlaying
	flagRecording
	flagLooping
)

var (
	// ErrBadPacket is returned by DecodePacket for foreign or truncated data.
	ErrBadPacket = errors.New("not a play head packet")
	// ErrUnsupported is returned by PacketTransport.Send for other message types.
	ErrUnsupported = errors.New("unsupported message type")
)

type wirePacket struct {
	Magic              [4]byte
	Version            uint8
	Flags              uint8
	FrameRate          uint8
	_                  uint8
	Sequence           uint32
	Timestamp          int64
	Session            [16]byte
	BPM                float64
	TimeSigNumerator   int32
	TimeSigDenominator int32
	TimeInSamples      int64
	TimeInSeconds      float64
	EditOriginTime     float64
	PPQPosition        float64
	PPQLastBarStart    float64
	PPQLoopStart       float64
	PPQLoopEnd         float64
}

// AppendPacket appends the encoded form of msg to dst.
func AppendPacket(dst []byte, msg transport.PositionMessage) ([]byte, error) {
	p := msg.Position
	w := wirePacket{
		Magic:              packetMagic,
		Version:            PacketVersion,
		FrameRate:          uint8(p.FrameRate),
		Sequence:           msg.Sequence,
		Timestamp:          msg.Timestamp,
		Session:            msg.Session,
		BPM:                p.BPM,
		TimeSigNumerator:   p.TimeSigNumerator,
		TimeSigDenominator: p.TimeSigDenominator,
		TimeInSamples:      p.TimeInSamples,
		TimeInSeconds:      p.TimeInSeconds,
		EditOriginTime:     p.EditOriginTime,
		PPQPosition:        p.PPQPosition,
		PPQLastBarStart:    p.PPQPositionOfLastBarStart,
		PPQLoopStart:       p.PPQLoopStart,
		PPQLoopEnd:         p.PPQLoopEnd,
	}
	if msg.Available {
		w.Flags |= flagAvailable
	}
	if p.IsPlaying {
		w.Flags |= flagPlaying
	}
	if p.IsRecording {
		w.Flags |= flagRecording
	}
	if p.IsLooping {
		w.Flags |= flagLooping
	}
	return binary.Append(dst, binary.BigEndian, &w)
}

// DecodePacket parses a datagram produced by AppendPacket.
func DecodePacket(data []byte) (transport.PositionMessage, error) {
	if len(data) != PacketSize {
		return transport.PositionMessage{}, fmt.Errorf("%w: %d bytes, want %d", ErrBadPacket, len(data), PacketSize)
	}
	var w wirePacket
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &w); err != nil {
		return transport.PositionMessage{}, fmt.Errorf("%w: %v", ErrBadPacket, err)
	}
	if w.Magic != packetMagic {
		return transport.PositionMessage{}, fmt.Errorf("%w: magic %q", ErrBadPacket, w.Magic[:])
	}
	if w.Version != PacketVersion {
		return transport.PositionMessage{}, fmt.Errorf("%w: version %d", ErrBadPacket, w.Version)
	}

	return transport.PositionMessage{
		Session:   uuid.UUID(w.Session),
		Sequence:  w.Sequence,
		Timestamp: w.Timestamp,
		Available: w.Flags&flagAvailable != 0,
		Position: playhead.PositionInfo{
			BPM:                       w.BPM,
			TimeSigNumerator:          w.TimeSigNumerator,
			TimeSigDenominator:        w.TimeSigDenominator,
			TimeInSamples:             w.TimeInSamples,
			TimeInSeconds:             w.TimeInSeconds,
			EditOriginTime:            w.EditOriginTime,
			PPQPosition:               w.PPQPosition,
			PPQPositionOfLastBarStart: w.PPQLastBarStart,
			FrameRate:                 playhead.FrameRate(w.FrameRate),
			IsPlaying:                 w.Flags&flagPlaying != 0,
			IsRecording:               w.Flags&flagRecording != 0,
			PPQLoopStart:              w.PPQLoopStart,
			PPQLoopEnd:                w.PPQLoopEnd,
			IsLooping:                 w.Flags&flagLooping != 0,
		},
	}, nil
}

// PacketTransport sends each PositionMessage as one UDP datagram. Other
// message types are rejected with ErrUnsupported.
type PacketTransport struct {
	sender *UDPSender

	mu  sync.Mutex
	buf []byte
}

// NewPacketTransport takes ownership of sender.
func NewPacketTransport(sender *UDPSender) *PacketTransport {
	return &PacketTransport{
		sender: sender,
		buf:    make([]byte, 0, PacketSize),
	}
}

// Send encodes and transmits a PositionMessage.
func (pt *PacketTransport) Send(data any) error {
	var msg transport.PositionMessage
	switch m := data.(type) {
	case transport.PositionMessage:
		msg = m
	case *transport.PositionMessage:
		msg = *m
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, data)
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	var err error
	pt.buf, err = AppendPacket(pt.buf[:0], msg)
	if err != nil {
		applog.Errorf("PacketTransport: Error packing sequence %d: %v", msg.Sequence, err)
		return err
	}
	if err := pt.sender.Send(pt.buf); err != nil {
		return err
	}
	applog.Debugf("PacketTransport: Sent packet %d (%d bytes)", msg.Sequence, len(pt.buf))
	return nil
}

// Close closes the underlying sender.
func (pt *PacketTransport) Close() error {
	return pt.sender.Close()
}

var _ transport.Transport = (*PacketTransport)(nil)
