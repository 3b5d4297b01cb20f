package ltbus

import (
	"errors"
	"fmt"
)

type Error string

func (e Error) Error() string {
	return "ltbus: " + string(e)
}

var ErrTimeout = Error("timeout")
var ErrFrameTooSmall = Error("frame too small")
var ErrCRC = Error("CRC error")
var ErrUnknownFunction = Error("unknown function")
var ErrSlaveIDMismatch = Error("slave id mismatch")
var ErrAddrMismatch = Error("address mismatch")
var ErrFraming = Error("invalid frame delimiter")
var ErrInvalidLen = Error("invalid length")
var ErrMaxPayloadExceeded = Error("max payload length exceeded")

// ErrRejected marks a well-formed request the slave could not serve.
var ErrRejected = Error("request rejected")

type CRCError struct {
	Have uint16
	Want uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("ltbus: CRC error (received: %04X, computed: %04X)", e.Have, e.Want)
}

func (e *CRCError) Unwrap() error {
	return ErrCRC
}

type FunctionError struct {
	Fn Function
}

func (e *FunctionError) Error() string {
	return "ltbus: unknown function " + e.Fn.String()
}

func (e *FunctionError) Unwrap() error {
	return ErrUnknownFunction
}

// A MismatchError reports a frame whose slave id or address
// differs from the expected one.
type MismatchError struct {
	Field string
	Want  uint16
	Have  uint16
}

func (e *MismatchError) Error() string {
	if e.Field == "addr" {
		return fmt.Sprintf("ltbus: addr mismatch (expected: 0x%04X, got: 0x%04X)", e.Want, e.Have)
	}
	return fmt.Sprintf("ltbus: %s mismatch (expected: %d, got: %d)", e.Field, e.Want, e.Have)
}

func (e *MismatchError) Unwrap() error {
	if e.Field == "addr" {
		return ErrAddrMismatch
	}
	return ErrSlaveIDMismatch
}

func NewSlaveIDMismatch(want, have uint8) error {
	return &MismatchError{Field: "slave id", Want: uint16(want), Have: uint16(have)}
}

type InvalidLenError struct {
	MsgContext
	Len         int
	ExpectedLen []int

	sentinel error
}

type MsgContext string

const (
	MsgContextFrame   MsgContext = "frame"
	MsgContextPayload MsgContext = "payload"
)

func NewInvalidLen(ctx MsgContext, have int, want ...int) error {
	return &InvalidLenError{MsgContext: ctx, Len: have, ExpectedLen: want}
}

func (e *InvalidLenError) Error() string {
	if e.MsgContext == "" {
		return "ltbus: invalid length (unspecified)"
	}
	if e.TooLong() {
		return fmt.Sprintf("ltbus: %s too long (have %d, want %d)", e.MsgContext, e.Len, e.ExpectedLen[0])
	}
	if e.TooShort() {
		return fmt.Sprintf("ltbus: %s too short (have %d, want %d)", e.MsgContext, e.Len, e.ExpectedLen[0])
	}
	return fmt.Sprintf("ltbus: invalid %s length (have %d, want %v)", e.MsgContext, e.Len, e.ExpectedLen)
}

func (e *InvalidLenError) Unwrap() error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return ErrInvalidLen
}

func (e *InvalidLenError) TooLong() bool {
	return len(e.ExpectedLen) == 1 && e.Len > e.ExpectedLen[0]
}

func (e *InvalidLenError) TooShort() bool {
	return len(e.ExpectedLen) == 1 && e.Len < e.ExpectedLen[0]
}

// MsgInvalid reports whether err was caused by malformed
// or foreign traffic, as opposed to a timeout or transport failure.
func MsgInvalid(err error) bool {
	if err == nil {
		return false
	}
	var le *InvalidLenError
	if errors.As(err, &le) {
		return true
	}
	for _, target := range []error{ErrCRC, ErrUnknownFunction, ErrSlaveIDMismatch, ErrAddrMismatch, ErrFraming} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
