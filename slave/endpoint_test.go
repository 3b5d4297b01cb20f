package slave

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/knieriem/io/corrupt"
	"github.com/knieriem/io/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knieriem/ltbus"
	"github.com/knieriem/ltbus/capture"
	"github.com/knieriem/ltbus/register"
)

func newTestRouter(t *testing.T) *register.Router {
	t.Helper()
	cfg, err := register.NewBuffer(0xA000,
		register.Reg("device_id", 0x000, register.U16),
		register.Reg("device_status", 0x002, register.U16),
		register.Reg("device_config", 0x004, register.U16),
		register.Reg("msg_counter", 0x006, register.U8),
		register.Reg("msg_buffer", 0x007, register.Array(255)),
	)
	require.NoError(t, err)
	data, err := register.NewBuffer(0xD000,
		register.Reg("FLOW", 0x000, register.F32),
		register.Reg("PR1", 0x004, register.F32),
		register.Reg("PR2", 0x008, register.F32),
	)
	require.NoError(t, err)
	r, err := register.NewRouter(cfg, data)
	require.NoError(t, err)
	_, err = r.WriteRegister("device_id", 0x1000)
	require.NoError(t, err)
	return r
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

type testBench struct {
	e      *Endpoint
	master net.Conn
	log    *syncBuffer
	done   chan error
}

func startEndpoint(t *testing.T, id uint8, wrap ...stream.WrapFunc) *testBench {
	t.Helper()
	c1, c2 := net.Pipe()
	tb := &testBench{
		e:      New(id, newTestRouter(t)),
		master: c2,
		log:    new(syncBuffer),
		done:   make(chan error, 1),
	}
	tb.e.Logger = slog.New(slog.NewTextHandler(tb.log, &slog.HandlerOptions{Level: slog.LevelDebug}))
	for _, f := range wrap {
		tb.e.ConnWrapper.Set(f)
	}
	tb.e.Attach(c1, "pipe")
	go func() {
		tb.done <- tb.e.Serve()
	}()
	t.Cleanup(func() {
		c2.Close()
		c1.Close()
	})
	return tb
}

func (tb *testBench) send(t *testing.T, frame []byte) {
	t.Helper()
	_, err := tb.master.Write(frame)
	require.NoError(t, err)
}

func (tb *testBench) read(t *testing.T, addr uint16, n int) []byte {
	t.Helper()
	tb.send(t, ltbus.EncodeReadRequest(tb.e.ID, addr, uint16(n)))
	b := make([]byte, ltbus.HeaderSize+n+ltbus.TrailerSize)
	tb.master.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(tb.master, b)
	require.NoError(t, err)
	resp, err := ltbus.DecodeResponse(b)
	require.NoError(t, err)
	assert.Equal(t, tb.e.ID, resp.SlaveID)
	assert.Equal(t, addr, resp.Address)
	return resp.Payload
}

func TestEndpointReadDeviceID(t *testing.T) {
	tb := startEndpoint(t, 0)

	tb.send(t, []byte{'{', 0x00, 0xAA, 0x00, 0xA0, 0x02, 0x00})
	crc := ltbus.Checksum([]byte{'{', 0x00, 0xAA, 0x00, 0xA0, 0x02, 0x00})
	tb.send(t, []byte{byte(crc), byte(crc >> 8), '}'})

	b := make([]byte, 12)
	_, err := io.ReadFull(tb.master, b)
	require.NoError(t, err)
	assert.Equal(t, ltbus.EncodeReadResponse(0, 0xA000, []byte{0x00, 0x10}), b)
}

func TestEndpointWriteThenRead(t *testing.T) {
	tb := startEndpoint(t, 0)

	payload, err := register.F32.Encode(12.34)
	require.NoError(t, err)
	tb.send(t, ltbus.EncodeWriteRequest(0, 0xD004, payload))

	assert.Equal(t, payload, tb.read(t, 0xD004, 4))
	v, err := tb.e.Router.ReadRegister("PR1")
	require.NoError(t, err)
	assert.InDelta(t, 12.34, v, 1e-5)

	// regions may span several registers
	assert.Equal(t, []byte{0x00, 0x10, 0x00, 0x00}, tb.read(t, 0xA000, 4))

	assert.Eventually(t, func() bool {
		return tb.e.Stats.Snapshot().All == 3
	}, time.Second, 10*time.Millisecond)
}

func TestEndpointDropsFrames(t *testing.T) {
	withCRC := func(b []byte) []byte {
		n := len(b) - ltbus.TrailerSize
		ltbus.ByteOrder.PutUint16(b[n:], ltbus.Checksum(b[:n]))
		return b
	}
	badCRC := ltbus.EncodeWriteRequest(0, 0xD000, []byte{1, 2, 3, 4})
	badCRC[ltbus.HeaderSize] ^= 0x01

	tests := []struct {
		name    string
		frame   []byte
		counter func(ltbus.RequestCounts) int
		log     string
	}{
		{"bad start byte", []byte("garbage"), invalid, "dropping frame"},
		{"unknown function", []byte{'{', 0, 0xEB, 0, 0xA0, 0, 0}, invalid, "unknown function"},
		{"bad end byte", withCRC([]byte{'{', 0, 0xAA, 0, 0xA0, 2, 0, 0, 0, ']'}), invalid, "invalid frame delimiter"},
		{"crc", badCRC, invalid, "crc=\"received"},
		{"other slave", ltbus.EncodeWriteRequest(1, 0xD000, []byte{1, 2, 3, 4}), foreign, "ignoring frame for other slave"},
		{"unknown buffer", ltbus.EncodeWriteRequest(0, 0xB000, []byte{1}), rejected, "no buffer at base address 0xB000"},
		{"out of bounds", ltbus.EncodeReadRequest(0, 0xD00A, 4), rejected, "out of bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := startEndpoint(t, 0)
			before, err := tb.e.Router.HandleRead(0xD000, 12)
			require.NoError(t, err)

			tb.send(t, tt.frame)

			// the endpoint stays responsive, and answers the
			// next request first
			assert.Equal(t, []byte{0x00, 0x10}, tb.read(t, 0xA000, 2))

			after, err := tb.e.Router.HandleRead(0xD000, 12)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, 1, tt.counter(tb.e.Stats.Snapshot()))
			assert.Contains(t, tb.log.String(), tt.log)
		})
	}
}

func invalid(n ltbus.RequestCounts) int  { return n.Invalid }
func foreign(n ltbus.RequestCounts) int  { return n.Foreign }
func rejected(n ltbus.RequestCounts) int { return n.Rejected }

type recorder struct {
	mu     sync.Mutex
	events []capture.Event
}

func (r *recorder) Log(e capture.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) list() []capture.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Event(nil), r.events...)
}

func TestEndpointCapture(t *testing.T) {
	tb := startEndpoint(t, 0)
	rec := new(recorder)
	tb.e.Capture = rec

	tb.send(t, ltbus.EncodeWriteRequest(3, 0xD000, []byte{1}))
	tb.read(t, 0xA000, 2)

	assert.Eventually(t, func() bool {
		return len(rec.list()) == 3
	}, time.Second, 10*time.Millisecond)
	ev := rec.list()
	assert.Equal(t, uint8(3), ev[0].SlaveID)
	assert.Contains(t, ev[0].Error, "slave id mismatch")
	assert.Equal(t, capture.DirectionIn, ev[1].Direction)
	assert.Equal(t, capture.DirectionOut, ev[2].Direction)
	assert.Equal(t, capture.RoleSlave, ev[2].Role)
	assert.Equal(t, tb.e.ConnectionID(), ev[2].ConnectionID)
	assert.Equal(t, "pipe", ev[2].Peer)
}

func TestEndpointLocker(t *testing.T) {
	tb := startEndpoint(t, 0)
	var mu sync.Mutex
	tb.e.Locker = &mu

	mu.Lock()
	go func() {
		time.Sleep(50 * time.Millisecond)
		tb.e.Router.WriteRegister("device_id", 0x2000)
		mu.Unlock()
	}()
	assert.Equal(t, []byte{0x00, 0x20}, tb.read(t, 0xA000, 2))
}

func TestEndpointTransportLoss(t *testing.T) {
	tb := startEndpoint(t, 0)
	assert.True(t, tb.e.Connected())

	tb.master.Close()
	select {
	case err := <-tb.done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(t, tb.e.Disconnect())
	assert.False(t, tb.e.Connected())
	assert.ErrorIs(t, tb.e.ServeOne(), ErrNotConnected)
	assert.ErrorIs(t, tb.e.Disconnect(), ErrNotConnected)
}

func TestEndpointTruncatedFrame(t *testing.T) {
	tb := startEndpoint(t, 0)
	tb.send(t, []byte{'{', 0, 0xEA, 0, 0xD0, 4, 0, 1})
	tb.master.Close()
	select {
	case err := <-tb.done:
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestMasterWithEndpoint(t *testing.T) {
	tb := startEndpoint(t, 5)
	m := ltbus.NewMaster(tb.master, "pipe")
	m.ResponseTimeout = time.Second
	d := ltbus.NewDevice(m, 5)

	pr2, ok := tb.e.Router.Lookup("PR2")
	require.True(t, ok)
	require.NoError(t, d.WriteRegister(pr2.Config, 3.5))
	v, err := d.ReadRegister(pr2.Config)
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), v)

	id, _ := tb.e.Router.Lookup("device_id")
	v, err = d.ReadRegister(id.Config)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1000), v)

	m.ResponseTimeout = 100 * time.Millisecond
	_, err = ltbus.NewDevice(m, 6).ReadRegion(0xA000, 2)
	assert.ErrorIs(t, err, ltbus.ErrTimeout)
	_, err = d.ReadRegion(0xB000, 2)
	assert.ErrorIs(t, err, ltbus.ErrTimeout)
}

func TestEndpointCorruptedInput(t *testing.T) {
	// The wrapper damages the second chunk read from the
	// transport, which is the trailer of the first request.
	tb := startEndpoint(t, 0, corrupt.Wrap)
	m := ltbus.NewMaster(tb.master, "pipe")
	m.ResponseTimeout = 200 * time.Millisecond

	data, err := m.ReadRegisters(0, 0xA000, 2, ltbus.RetryOnTimeout(2, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x10}, data)

	assert.Eventually(t, func() bool {
		return tb.e.Stats.Snapshot().All == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, tb.e.Stats.Snapshot().Invalid)
	assert.Equal(t, 1, m.RequestStats.Snapshot().All)
	assert.Contains(t, tb.log.String(), "dropping frame")
}

func TestEndpointConnWrapper(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	tb := startEndpoint(t, 0, func(rw io.ReadWriter, connID string) io.ReadWriter {
		mu.Lock()
		ids = append(ids, connID)
		mu.Unlock()
		return rw
	})
	assert.Equal(t, []byte{0x00, 0x10}, tb.read(t, 0xA000, 2))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{tb.e.ConnectionID()}, ids)
}
