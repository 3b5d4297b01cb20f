package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knieriem/ltbus/datagen"
)

func TestDefaultRouter(t *testing.T) {
	r, err := defaultRouter()
	require.NoError(t, err)

	data, err := r.HandleRead(0xA000, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x10}, data)

	regs := dataRegisters(r)
	require.Len(t, regs, 3)
	assert.Equal(t, "FLOW", regs[0].Name)

	// the generator leaves the identity window alone
	g := datagen.New(r, datagen.Const, regs...)
	require.NoError(t, g.Next())
	v, err := r.ReadRegister("device_id")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1000), v)
	v, err = r.ReadRegister("PR2")
	require.NoError(t, err)
	assert.InDelta(t, 24.6, v, 1e-5)
}

func TestValidateConfig(t *testing.T) {
	saved := config
	defer func() { config = saved }()

	config = Config{Conn: "tcp:x", Listen: ":6543"}
	assert.Error(t, validateConfig())

	config = Config{SlaveID: 256}
	assert.Error(t, validateConfig())

	config = Config{Simulate: "square"}
	assert.ErrorIs(t, validateConfig(), datagen.ErrUnknownMode)

	config = Config{Simulate: "sine", Interval: 0}
	assert.Error(t, validateConfig())

	config = Config{Simulate: "linear", Interval: 1}
	assert.NoError(t, validateConfig())
}

func TestConnWrapper(t *testing.T) {
	saved := config
	defer func() { config = saved }()

	config = Config{}
	assert.Nil(t, connWrapper())

	config = Config{Trace: true}
	w := connWrapper()
	require.NotNil(t, w)
	var buf bytes.Buffer
	rw := w(&buf, "conn-1")
	_, unwrapped := rw.(*bytes.Buffer)
	assert.False(t, unwrapped)
	_, err := rw.Write([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "{}", buf.String())

	config = Config{Corrupt: true, Trace: true}
	assert.NotNil(t, connWrapper())
}
