package ltbus

import (
	"errors"

	"github.com/knieriem/ltbus/register"
)

// A Device is a slave addressed through a Bus.
type Device struct {
	ID  uint8
	bus Bus
}

func NewDevice(bus Bus, id uint8) *Device {
	return &Device{ID: id, bus: bus}
}

func (d *Device) ReadRegion(addr uint16, n int, opts ...ReqOption) ([]byte, error) {
	return d.bus.ReadRegisters(d.ID, addr, n, opts...)
}

func (d *Device) WriteRegion(addr uint16, data []byte, opts ...ReqOption) error {
	return d.bus.WriteRegisters(d.ID, addr, data, opts...)
}

// ReadRegister reads and decodes the register described by c,
// whose offset must be an absolute address.
func (d *Device) ReadRegister(c register.Config, opts ...ReqOption) (v interface{}, err error) {
	b, err := d.ReadRegion(c.Offset, c.Size(), opts...)
	if err != nil {
		return
	}
	return c.Type.Decode(b)
}

// WriteRegister encodes v as the type of c and writes it.
func (d *Device) WriteRegister(c register.Config, v interface{}, opts ...ReqOption) error {
	b, err := c.Type.Encode(v)
	if err != nil {
		return err
	}
	return d.WriteRegion(c.Offset, b, opts...)
}

// ReadString reads a text register, applying filters like
// register.StopAtZero to the raw bytes.
func (d *Device) ReadString(c register.Config, filters ...register.StringFilter) (string, error) {
	b, err := d.ReadRegion(c.Offset, c.Size())
	if err != nil {
		return "", err
	}
	return register.DecodeString(b, filters...), nil
}

type DeviceTestFunc func(id uint8, d *Device) error

// ScanDevices calls test for each slave id in [idMin, idMax].
// Timeouts and invalid responses mark an id as unused; any other
// error stops the scan.
func ScanDevices(bus Bus, idMin, idMax uint8, test DeviceTestFunc) (err error) {
	d := NewDevice(bus, 0)
	for id := int(idMin); id <= int(idMax); id++ {
		d.ID = uint8(id)
		err = test(d.ID, d)
		if err != nil {
			if errors.Is(err, ErrTimeout) || MsgInvalid(err) {
				err = nil
				continue
			}
			break
		}
	}
	return
}
