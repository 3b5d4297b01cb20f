package ltbus

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/knieriem/crcutil/poly16"
	"github.com/knieriem/hash/crc16"
)

// ByteOrder is the byte order of multi-byte frame fields.
var ByteOrder = binary.LittleEndian

// Frame delimiters.
const (
	StartByte = '{'
	EndByte   = '}'
)

const (
	// HeaderSize is the number of bytes from the start
	// delimiter up to and including the length field.
	HeaderSize = 7

	// TrailerSize covers the CRC and the end delimiter.
	TrailerSize = 3

	// MinFrameSize is the smallest frame the codec
	// accepts for validation.
	MinFrameSize = 8

	// ReadRequestSize is the size of a READ request, which
	// never carries a payload.
	ReadRequestSize = HeaderSize + TrailerSize

	// MaxPayload is the largest payload the length field can describe.
	MaxPayload = 0xFFFF
)

const (
	posStart   = 0
	posSlaveID = 1
	posFn      = 2
	posAddr    = 3
	posLen     = 5
)

type Function uint8

const (
	FnRead         Function = 0xAA
	FnReadResponse Function = 0xAB
	FnWrite        Function = 0xEA
)

func (fn Function) String() string {
	switch fn {
	case FnRead:
		return "READ"
	case FnReadResponse:
		return "READ_RESPONSE"
	case FnWrite:
		return "WRITE"
	}
	return "0x" + strconv.FormatUint(uint64(fn), 16)
}

// IsRequest reports whether fn may be sent by a master.
func (fn Function) IsRequest() bool {
	return fn == FnRead || fn == FnWrite
}

// CRCModel is CRC-16/X-25: the reflected CCITT polynomial,
// with initial value and result inverted.
var CRCModel = &crc16.Model{
	Poly:          poly16.CCITT.ReversedForm(),
	InitialInvert: true,
	FinalInvert:   true,
}

// Checksum returns the CRC-16/X-25 of b.
func Checksum(b []byte) uint16 {
	return crc16.Checksum(b, CRCModel)
}

// A Request is a decoded master frame. For READ requests,
// Length is the number of bytes requested and Payload is nil.
type Request struct {
	SlaveID  uint8
	Function Function
	Address  uint16
	Length   uint16
	Payload  []byte
}

// Encode returns the wire representation of r. The payload
// of a WRITE request must not exceed MaxPayload.
func (r *Request) Encode() ([]byte, error) {
	if r.Function == FnRead {
		return encode(r.SlaveID, r.Function, r.Address, r.Length, nil), nil
	}
	if len(r.Payload) > MaxPayload {
		return nil, ErrMaxPayloadExceeded
	}
	return encode(r.SlaveID, r.Function, r.Address, uint16(len(r.Payload)), r.Payload), nil
}

// A Response is a decoded READ_RESPONSE frame.
type Response struct {
	SlaveID uint8
	Address uint16
	Payload []byte
}

func encode(slaveID uint8, fn Function, addr, length uint16, payload []byte) []byte {
	b := make([]byte, HeaderSize, HeaderSize+len(payload)+TrailerSize)
	b[posStart] = StartByte
	b[posSlaveID] = slaveID
	b[posFn] = byte(fn)
	ByteOrder.PutUint16(b[posAddr:], addr)
	ByteOrder.PutUint16(b[posLen:], length)
	b = append(b, payload...)
	b = ByteOrder.AppendUint16(b, Checksum(b))
	return append(b, EndByte)
}

func EncodeReadRequest(slaveID uint8, addr, n uint16) []byte {
	return encode(slaveID, FnRead, addr, n, nil)
}

// EncodeWriteRequest panics if data exceeds MaxPayload;
// callers building frames from user data check the length first.
func EncodeWriteRequest(slaveID uint8, addr uint16, data []byte) []byte {
	if len(data) > MaxPayload {
		panic(ErrMaxPayloadExceeded)
	}
	return encode(slaveID, FnWrite, addr, uint16(len(data)), data)
}

func EncodeReadResponse(slaveID uint8, addr uint16, data []byte) []byte {
	if len(data) > MaxPayload {
		panic(ErrMaxPayloadExceeded)
	}
	return encode(slaveID, FnReadResponse, addr, uint16(len(data)), data)
}

// checkFrame verifies size and CRC of a complete frame,
// and returns its function code.
func checkFrame(b []byte) (Function, error) {
	if len(b) < MinFrameSize {
		return 0, &InvalidLenError{MsgContext: MsgContextFrame, Len: len(b), ExpectedLen: []int{MinFrameSize}, sentinel: ErrFrameTooSmall}
	}
	crcStart := len(b) - TrailerSize
	want := Checksum(b[:crcStart])
	have := ByteOrder.Uint16(b[crcStart:])
	if have != want {
		return 0, &CRCError{Have: have, Want: want}
	}
	return Function(b[posFn]), nil
}

func checkDelimiters(b []byte) error {
	if b[posStart] != StartByte || b[len(b)-1] != EndByte {
		return ErrFraming
	}
	return nil
}

// DecodeFrame validates a complete request frame. Checks are
// applied in this order: minimum size, CRC, function code,
// delimiters and length consistency. The slave id is not checked.
func DecodeFrame(b []byte) (*Request, error) {
	fn, err := checkFrame(b)
	if err != nil {
		return nil, err
	}
	if !fn.IsRequest() {
		return nil, &FunctionError{Fn: fn}
	}
	err = checkDelimiters(b)
	if err != nil {
		return nil, err
	}
	r := &Request{
		SlaveID:  b[posSlaveID],
		Function: fn,
		Address:  ByteOrder.Uint16(b[posAddr:]),
		Length:   ByteOrder.Uint16(b[posLen:]),
	}
	if fn == FnRead {
		if len(b) != ReadRequestSize {
			return nil, NewInvalidLen(MsgContextFrame, len(b), ReadRequestSize)
		}
		return r, nil
	}
	if n := HeaderSize + int(r.Length) + TrailerSize; len(b) != n {
		return nil, NewInvalidLen(MsgContextFrame, len(b), n)
	}
	r.Payload = append([]byte(nil), b[HeaderSize:len(b)-TrailerSize]...)
	return r, nil
}

// DecodeResponse validates a complete READ_RESPONSE frame.
func DecodeResponse(b []byte) (*Response, error) {
	fn, err := checkFrame(b)
	if err != nil {
		return nil, err
	}
	if fn != FnReadResponse {
		return nil, &FunctionError{Fn: fn}
	}
	err = checkDelimiters(b)
	if err != nil {
		return nil, err
	}
	length := int(ByteOrder.Uint16(b[posLen:]))
	if n := HeaderSize + length + TrailerSize; len(b) != n {
		return nil, NewInvalidLen(MsgContextFrame, len(b), n)
	}
	return &Response{
		SlaveID: b[posSlaveID],
		Address: ByteOrder.Uint16(b[posAddr:]),
		Payload: append([]byte(nil), b[HeaderSize:len(b)-TrailerSize]...),
	}, nil
}

// BodyLen returns the number of bytes that follow a request
// header hdr, which must be HeaderSize bytes long.
func BodyLen(hdr []byte) (n int, err error) {
	switch fn := Function(hdr[posFn]); fn {
	case FnRead:
		n = TrailerSize
	case FnWrite:
		n = int(ByteOrder.Uint16(hdr[posLen:])) + TrailerSize
	default:
		err = &FunctionError{Fn: fn}
	}
	return
}

// FrameComplete reports whether b holds a frame as long as its
// header announces. A buffer that does not begin with StartByte
// is reported complete, so that it can be rejected without delay.
func FrameComplete(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	if b[posStart] != StartByte {
		return true
	}
	if len(b) < HeaderSize {
		return false
	}
	return len(b) >= HeaderSize+int(ByteOrder.Uint16(b[posLen:]))+TrailerSize
}

func hexAddr(a uint16) string {
	return fmt.Sprintf("0x%04X", a)
}

func hexBytes(b []byte) string {
	return fmt.Sprintf("% x", b)
}
