package register

import (
	"fmt"
)

type Error string

func (e Error) Error() string {
	return "register: " + string(e)
}

var (
	ErrLayout          = Error("invalid layout")
	ErrUnknownRegister = Error("unknown register")
	ErrUnknownBuffer   = Error("unknown buffer")
	ErrOutOfBounds     = Error("region out of bounds")
	ErrCodec           = Error("codec error")
)

// A LayoutError reports a register definition that cannot be
// placed into a buffer, or a buffer that cannot be added to a router.
type LayoutError struct {
	Base   uint16
	Name   string
	Reason string
}

func (e *LayoutError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("register: invalid layout of buffer 0x%04X: %s", e.Base, e.Reason)
	}
	return fmt.Sprintf("register: invalid layout of buffer 0x%04X: %s: %s", e.Base, e.Name, e.Reason)
}

func (e *LayoutError) Unwrap() error {
	return ErrLayout
}

type UnknownRegisterError struct {
	Name string
}

func (e *UnknownRegisterError) Error() string {
	return "register: unknown register " + fmt.Sprintf("%q", e.Name)
}

func (e *UnknownRegisterError) Unwrap() error {
	return ErrUnknownRegister
}

// An UnknownBufferError is returned if no buffer owns
// the window of an address.
type UnknownBufferError struct {
	Addr uint16
}

func (e *UnknownBufferError) Error() string {
	return fmt.Sprintf("register: no buffer at base address 0x%04X (addr 0x%04X)", BaseOf(e.Addr), e.Addr)
}

func (e *UnknownBufferError) Unwrap() error {
	return ErrUnknownBuffer
}

// An OutOfBoundsError reports a region access that exceeds
// the storage of a buffer.
type OutOfBoundsError struct {
	Base uint16
	Addr uint16
	Size int
	Len  int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("register: region 0x%04X+%d out of bounds of buffer 0x%04X (%d bytes)", e.Addr, e.Size, e.Base, e.Len)
}

func (e *OutOfBoundsError) Unwrap() error {
	return ErrOutOfBounds
}

type CodecError struct {
	Type  Type
	Len   int
	Value interface{}
}

func (e *CodecError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("register: cannot encode %T as %v", e.Value, e.Type)
	}
	return fmt.Sprintf("register: %v needs %d bytes, have %d", e.Type, e.Type.Size(), e.Len)
}

func (e *CodecError) Unwrap() error {
	return ErrCodec
}
