package register

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	cfg := newConfigBuffer(t)
	data, err := NewBuffer(0xD000,
		Reg("FLOW", 0x000, F32),
		Reg("PR1", 0x004, F32),
		Reg("PR2", 0x008, F32),
	)
	require.NoError(t, err)
	r, err := NewRouter(cfg, data)
	require.NoError(t, err)
	return r
}

func TestRouterResolve(t *testing.T) {
	r := newTestRouter(t)

	for _, addr := range []uint16{0xA000, 0xA004, 0xA0FF, 0xAFFF} {
		b, err := r.Resolve(addr)
		require.NoError(t, err)
		assert.Equal(t, uint16(0xA000), b.Base())
	}
	b, err := r.Resolve(0xD008)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xD000), b.Base())

	_, err = r.Resolve(0xB000)
	assert.ErrorIs(t, err, ErrUnknownBuffer)
	var ue *UnknownBufferError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, uint16(0xB000), ue.Addr)
}

func TestRouterHandleReadWrite(t *testing.T) {
	r := newTestRouter(t)

	payload, err := F32.Encode(12.34)
	require.NoError(t, err)
	require.NoError(t, r.HandleWrite(0xD004, payload))

	data, err := r.HandleRead(0xD004, 4)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	v, err := r.ReadRegister("PR1")
	require.NoError(t, err)
	assert.InDelta(t, 12.34, v, 1e-5)

	_, err = r.HandleRead(0xD00A, 4)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	err = r.HandleWrite(0xC000, []byte{1})
	assert.ErrorIs(t, err, ErrUnknownBuffer)
}

func TestRouterIndex(t *testing.T) {
	r := newTestRouter(t)

	e, ok := r.Lookup("PR2")
	require.True(t, ok)
	assert.Equal(t, uint16(0xD000), e.Base)
	assert.Equal(t, uint16(0xD008), e.Offset)
	assert.Equal(t, F32, e.Type)

	v, err := r.WriteRegister("device_id", 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1000), v)
	_, err = r.ReadRegister("TMP1")
	assert.ErrorIs(t, err, ErrUnknownRegister)

	names := r.Names()
	assert.Equal(t, "device_id", names[0])
	assert.Equal(t, "PR2", names[len(names)-1])

	b, ok := r.Remove(0xD000)
	require.True(t, ok)
	assert.Equal(t, uint16(0xD000), b.Base())
	_, ok = r.Lookup("PR2")
	assert.False(t, ok)

	require.NoError(t, r.Add(b))
	_, ok = r.Lookup("PR2")
	assert.True(t, ok)
	assert.Len(t, r.Buffers(), 2)
}

func TestRouterAddErrors(t *testing.T) {
	r := newTestRouter(t)

	b, err := NewBuffer(0xA000, Reg("x", 0, U8))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Add(b), ErrLayout)

	b, err = NewBuffer(0xE010, Reg("x", 0, U8))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Add(b), ErrLayout)

	b, err = NewBuffer(0xE000, Reg("PR1", 0, F32))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Add(b), ErrLayout)

	_, ok := r.Lookup("x")
	assert.False(t, ok)
}
