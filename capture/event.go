package capture

import (
	"time"
)

// Event is a single frame seen on a connection.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Role      Role      `cbor:"4,keyasint"`

	// Peer is the remote address or device name, if known.
	Peer string `cbor:"5,keyasint,omitempty"`

	// Header fields, copied from Frame if it was long enough.
	SlaveID  uint8  `cbor:"6,keyasint"`
	Function uint8  `cbor:"7,keyasint"`
	Address  uint16 `cbor:"8,keyasint"`

	// Frame holds the raw bytes, possibly truncated.
	Frame     []byte `cbor:"9,keyasint,omitempty"`
	Size      int    `cbor:"10,keyasint"`
	Truncated bool   `cbor:"11,keyasint,omitempty"`

	// Error describes why a frame was dropped or a request failed.
	Error string `cbor:"12,keyasint,omitempty"`
}

// MaxFrameData limits the number of frame bytes stored per event.
const MaxFrameData = 1024

// NewEvent returns an event for frame, stamped with the current time.
// Header fields are filled in from the frame when present; a non-nil
// err is recorded as the event's error.
func NewEvent(connID string, dir Direction, role Role, frame []byte, err error) Event {
	e := Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Role:         role,
		Size:         len(frame),
	}
	if len(frame) >= 7 {
		e.SlaveID = frame[1]
		e.Function = frame[2]
		e.Address = uint16(frame[3]) | uint16(frame[4])<<8
	}
	data := frame
	if len(data) > MaxFrameData {
		data = data[:MaxFrameData]
		e.Truncated = true
	}
	e.Frame = append([]byte(nil), data...)
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Arrow returns the trace notation of d: "->" for incoming,
// "<-" for outgoing frames.
func (d Direction) Arrow() string {
	if d == DirectionOut {
		return "<-"
	}
	return "->"
}

// Role tells which side of the bus recorded an event.
type Role uint8

const (
	RoleSlave  Role = 0
	RoleMaster Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleSlave:
		return "SLAVE"
	case RoleMaster:
		return "MASTER"
	default:
		return "UNKNOWN"
	}
}
