package ltbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeReadRequest(t *testing.T) {
	b := EncodeReadRequest(0, 0xA000, 2)
	require.Len(t, b, ReadRequestSize)
	assert.Equal(t, []byte{'{', 0x00, 0xAA, 0x00, 0xA0, 0x02, 0x00}, b[:HeaderSize])
	assert.Equal(t, byte('}'), b[len(b)-1])

	crc := Checksum(b[:7])
	assert.Equal(t, crc, ByteOrder.Uint16(b[7:]))

	r := &Request{SlaveID: 0, Function: FnRead, Address: 0xA000, Length: 2}
	assert.Equal(t, b, mustEncode(t, r))
}

func mustEncode(t *testing.T, r *Request) []byte {
	t.Helper()
	b, err := r.Encode()
	require.NoError(t, err)
	return b
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"read", Request{SlaveID: 3, Function: FnRead, Address: 0xD004, Length: 4}},
		{"write", Request{SlaveID: 0, Function: FnWrite, Address: 0xD004, Length: 4, Payload: []byte{0xA4, 0x70, 0x45, 0x41}}},
		{"write one byte", Request{SlaveID: 255, Function: FnWrite, Address: 0xA006, Length: 1, Payload: []byte{7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustEncode(t, &tt.req)
			got, err := DecodeFrame(b)
			require.NoError(t, err)
			assert.Equal(t, &tt.req, got)
		})
	}

	w := EncodeWriteRequest(1, 0xD004, []byte{1, 2, 3})
	assert.Equal(t, mustEncode(t, &Request{SlaveID: 1, Function: FnWrite, Address: 0xD004, Payload: []byte{1, 2, 3}}), w)
}

func TestDecodeResponse(t *testing.T) {
	b := EncodeReadResponse(0, 0xA000, []byte{0x00, 0x10})
	assert.Len(t, b, 12)
	resp, err := DecodeResponse(b)
	require.NoError(t, err)
	assert.Equal(t, &Response{SlaveID: 0, Address: 0xA000, Payload: []byte{0x00, 0x10}}, resp)

	_, err = DecodeFrame(b)
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = DecodeResponse(EncodeReadRequest(0, 0xA000, 2))
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestDecodeFrameErrors(t *testing.T) {
	withCRC := func(b []byte) []byte {
		n := len(b) - TrailerSize
		ByteOrder.PutUint16(b[n:], Checksum(b[:n]))
		return b
	}

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"too small", []byte{'{', 0, 0xAA, 0, 0xA0, 0, '}'}, ErrFrameTooSmall},
		{"empty", nil, ErrFrameTooSmall},
		{"crc", func() []byte {
			b := EncodeReadRequest(0, 0xA000, 2)
			b[7] ^= 0xFF
			return b
		}(), ErrCRC},
		{"unknown function", withCRC([]byte{'{', 0, 0xEB, 0, 0xA0, 0, 0, 0, 0, '}'}), ErrUnknownFunction},
		{"start delimiter", withCRC([]byte{'[', 0, 0xAA, 0, 0xA0, 2, 0, 0, 0, '}'}), ErrFraming},
		{"end delimiter", withCRC([]byte{'{', 0, 0xAA, 0, 0xA0, 2, 0, 0, 0, ']'}), ErrFraming},
		{"read with payload", withCRC([]byte{'{', 0, 0xAA, 0, 0xA0, 2, 0, 9, 0, 0, '}'}), ErrInvalidLen},
		{"write length", withCRC([]byte{'{', 0, 0xEA, 0, 0xA0, 2, 0, 9, 0, 0, '}'}), ErrInvalidLen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.frame)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeFrameBitFlips(t *testing.T) {
	frames := [][]byte{
		EncodeReadRequest(0, 0xA000, 2),
		EncodeWriteRequest(0, 0xD004, []byte{0xA4, 0x70, 0x45, 0x41}),
	}
	for _, orig := range frames {
		crcStart := len(orig) - TrailerSize
		for i := 0; i < crcStart; i++ {
			for bit := 0; bit < 8; bit++ {
				b := append([]byte(nil), orig...)
				b[i] ^= 1 << bit
				_, err := DecodeFrame(b)
				var ce *CRCError
				if assert.ErrorAs(t, err, &ce, "byte %d bit %d", i, bit) {
					assert.Equal(t, ByteOrder.Uint16(orig[crcStart:]), ce.Have)
				}
			}
		}
	}
}

func TestBodyLen(t *testing.T) {
	n, err := BodyLen(EncodeReadRequest(0, 0xA000, 200))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = BodyLen(EncodeWriteRequest(0, 0xA000, make([]byte, 300)))
	require.NoError(t, err)
	assert.Equal(t, 303, n)

	_, err = BodyLen([]byte{'{', 0, 0xEC, 0, 0, 0, 0})
	var fe *FunctionError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Function(0xEC), fe.Fn)
}

func TestFrameComplete(t *testing.T) {
	resp := EncodeReadResponse(0, 0xA000, []byte{1, 2, 3, 4})
	for i := 0; i < len(resp); i++ {
		assert.False(t, FrameComplete(resp[:i]), "prefix %d", i)
	}
	assert.True(t, FrameComplete(resp))
	assert.True(t, FrameComplete(append(resp, 0)))
	assert.True(t, FrameComplete([]byte{0x00}))
}

func TestMsgInvalid(t *testing.T) {
	assert.True(t, MsgInvalid(&CRCError{}))
	assert.True(t, MsgInvalid(NewInvalidLen(MsgContextFrame, 3, 10)))
	assert.True(t, MsgInvalid(NewSlaveIDMismatch(1, 2)))
	assert.True(t, MsgInvalid(ErrFraming))
	assert.False(t, MsgInvalid(ErrTimeout))
	assert.False(t, MsgInvalid(nil))
	assert.False(t, MsgInvalid(ErrRejected))
}

func TestMaxPayload(t *testing.T) {
	big := make([]byte, MaxPayload+1)
	assert.PanicsWithValue(t, ErrMaxPayloadExceeded, func() {
		EncodeWriteRequest(0, 0, big)
	})

	r := &Request{Function: FnWrite, Payload: big}
	b, err := r.Encode()
	assert.ErrorIs(t, err, ErrMaxPayloadExceeded)
	assert.Nil(t, b)

	r.Payload = big[:MaxPayload]
	b, err = r.Encode()
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize+MaxPayload+TrailerSize)
	assert.Equal(t, uint16(MaxPayload), ByteOrder.Uint16(b[posLen:]))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, uint16(0x906E), Checksum([]byte("123456789")))

	tab := CRCModel.MakeTable()
	assert.Equal(t, uint16(0x1189), tab[1])
	assert.Equal(t, uint16(0x8408), tab[128])
	assert.Equal(t, uint16(0x0F78), tab[255])

	// incremental computation yields the same sum
	inst := CRCModel.New()
	inst.Update([]byte("1234"))
	inst.Update([]byte("56789"))
	assert.Equal(t, uint16(0x906E), inst.Sum())
}
