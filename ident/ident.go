// Package ident implements the identity window every LT-BUS
// device provides at the start of its configuration buffer.
package ident

import (
	"github.com/knieriem/ltbus"
	"github.com/knieriem/ltbus/register"
)

type Error string

func (e Error) Error() string {
	return "ident: " + string(e)
}

// Base is the address of the configuration buffer
// holding the identity window.
const Base = 0xA000

// MaxMessageLen is the capacity of the message buffer.
const MaxMessageLen = 255

// Register names
const (
	DeviceID     = "device_id"
	DeviceStatus = "device_status"
	DeviceConfig = "device_config"
	MsgCounter   = "msg_counter"
	MsgBuffer    = "msg_buffer"
)

const (
	offsetMsgCounter = 0x006
	offsetMsgBuffer  = 0x007
)

// Registers returns the layout of the identity window,
// with offsets relative to Base.
func Registers() []register.Config {
	return []register.Config{
		register.Reg(DeviceID, 0x000, register.U16),
		register.Reg(DeviceStatus, 0x002, register.U16),
		register.Reg(DeviceConfig, 0x004, register.U16),
		register.Reg(MsgCounter, offsetMsgCounter, register.U8),
		register.Reg(MsgBuffer, offsetMsgBuffer, register.Array(MaxMessageLen)),
	}
}

// NewBuffer returns a configuration buffer at Base containing
// the identity window followed by extra registers.
func NewBuffer(deviceID uint16, extra ...register.Config) (*register.Buffer, error) {
	b, err := register.NewBuffer(Base, append(Registers(), extra...)...)
	if err != nil {
		return nil, err
	}
	_, err = b.WriteRegister(DeviceID, deviceID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Identity is the content of the identity window.
type Identity struct {
	DeviceID uint16
	Status   uint16
	Config   uint16
	Message  string
}

// A Store is a register storage the identity window is part of,
// like a *register.Buffer or a *register.Router.
type Store interface {
	WriteRegister(name string, v interface{}) (interface{}, error)
}

// SetMessage stores msg into the message buffer and updates the
// message counter. Messages longer than MaxMessageLen are truncated.
func SetMessage(s Store, msg string) error {
	buf := make([]byte, MaxMessageLen)
	register.EncodeString(buf, msg)
	_, err := s.WriteRegister(MsgBuffer, buf)
	if err != nil {
		return err
	}
	n := len(msg)
	if n > MaxMessageLen {
		n = MaxMessageLen
	}
	_, err = s.WriteRegister(MsgCounter, n)
	return err
}

// A Reader reads the identity window of a device.
type Reader struct {
	d *ltbus.Device
}

func NewReader(d *ltbus.Device) *Reader {
	return &Reader{d: d}
}

// Read reads the fixed part of the identity window, and then as many
// bytes of the message buffer as the message counter indicates.
func (r *Reader) Read(reqOpts ...ltbus.ReqOption) (id Identity, err error) {
	hdr, err := r.d.ReadRegion(Base, offsetMsgBuffer, reqOpts...)
	if err != nil {
		return
	}
	if len(hdr) != offsetMsgBuffer {
		err = Error("invalid msg len")
		return
	}
	id.DeviceID = ltbus.ByteOrder.Uint16(hdr[0:])
	id.Status = ltbus.ByteOrder.Uint16(hdr[2:])
	id.Config = ltbus.ByteOrder.Uint16(hdr[4:])

	n := int(hdr[offsetMsgCounter])
	if n == 0 {
		return
	}
	msg, err := r.d.ReadRegion(Base+offsetMsgBuffer, n, reqOpts...)
	if err != nil {
		return
	}
	if len(msg) != n {
		err = Error("invalid number of message bytes")
		return
	}
	id.Message = register.DecodeString(msg, register.StopAtZero)
	return
}
