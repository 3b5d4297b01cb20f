package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knieriem/ltbus"
	"github.com/knieriem/ltbus/register"
)

// routerBus serves requests directly from a router.
type routerBus struct {
	r     *register.Router
	reads int
}

func (b *routerBus) ReadRegisters(slaveID uint8, addr uint16, n int, opts ...ltbus.ReqOption) ([]byte, error) {
	b.reads++
	return b.r.HandleRead(addr, n)
}

func (b *routerBus) WriteRegisters(slaveID uint8, addr uint16, data []byte, opts ...ltbus.ReqOption) error {
	return b.r.HandleWrite(addr, data)
}

func newDevice(t *testing.T) (*routerBus, *register.Router) {
	t.Helper()
	buf, err := NewBuffer(0x1000, register.Reg("serial", 0x200, register.U32))
	require.NoError(t, err)
	r, err := register.NewRouter(buf)
	require.NoError(t, err)
	return &routerBus{r: r}, r
}

func TestRegisters(t *testing.T) {
	regs := Registers()
	require.Len(t, regs, 5)
	last := regs[len(regs)-1]
	assert.Equal(t, MsgBuffer, last.Name)
	assert.Equal(t, 0x007+MaxMessageLen, last.End())

	_, err := NewBuffer(1, register.Reg(DeviceStatus, 0x100, register.U8))
	assert.ErrorIs(t, err, register.ErrLayout)
}

func TestReader(t *testing.T) {
	bus, r := newDevice(t)
	_, err := r.WriteRegister(DeviceStatus, 3)
	require.NoError(t, err)

	rd := NewReader(ltbus.NewDevice(bus, 0))
	id, err := rd.Read()
	require.NoError(t, err)
	assert.Equal(t, Identity{DeviceID: 0x1000, Status: 3}, id)
	assert.Equal(t, 1, bus.reads)

	require.NoError(t, SetMessage(r, "calibration due"))
	id, err = rd.Read()
	require.NoError(t, err)
	assert.Equal(t, "calibration due", id.Message)
	assert.Equal(t, 3, bus.reads)

	v, err := r.ReadRegister(MsgCounter)
	require.NoError(t, err)
	assert.Equal(t, uint8(15), v)

	// bytes outside of ASCII are part of the message
	require.NoError(t, SetMessage(r, "temp 25\xb0C ok"))
	id, err = rd.Read()
	require.NoError(t, err)
	assert.Equal(t, "temp 25\xb0C ok", id.Message)

	// a shorter message replaces the previous one completely
	require.NoError(t, SetMessage(r, "ok"))
	raw, err := r.HandleRead(Base+0x007, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{'o', 'k', 0, 0}, raw)
}

func TestSetMessageTruncates(t *testing.T) {
	bus, r := newDevice(t)
	long := strings.Repeat("x", MaxMessageLen+10)
	require.NoError(t, SetMessage(r, long))

	id, err := NewReader(ltbus.NewDevice(bus, 0)).Read()
	require.NoError(t, err)
	assert.Equal(t, long[:MaxMessageLen], id.Message)
}

func TestReaderErrors(t *testing.T) {
	bus := &routerBus{}
	buf, err := register.NewBuffer(Base, register.Reg(DeviceID, 0, register.U16))
	require.NoError(t, err)
	bus.r, err = register.NewRouter(buf)
	require.NoError(t, err)

	_, err = NewReader(ltbus.NewDevice(bus, 0)).Read()
	assert.ErrorIs(t, err, register.ErrOutOfBounds)
}
