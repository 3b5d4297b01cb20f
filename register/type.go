package register

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/x448/float16"
)

// ByteOrder is the byte order of all register values.
var ByteOrder = binary.LittleEndian

// Kind enumerates the register encodings.
type Kind uint8

const (
	Uint8 Kind = 1 + iota
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float16
	Float32
	Float64
	Bytes
)

var kindNames = []string{
	Uint8:   "u8",
	Uint16:  "u16",
	Uint32:  "u32",
	Uint64:  "u64",
	Int8:    "i8",
	Int16:   "i16",
	Int32:   "i32",
	Int64:   "i64",
	Float16: "f16",
	Float32: "f32",
	Float64: "f64",
	Bytes:   "u8[]",
}

var kindSizes = []int{
	Uint8:   1,
	Uint16:  2,
	Uint32:  4,
	Uint64:  8,
	Int8:    1,
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Float16: 2,
	Float32: 4,
	Float64: 8,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) IsSigned() bool {
	return k >= Int8 && k <= Int64
}

func (k Kind) IsFloat() bool {
	return k >= Float16 && k <= Float64
}

// Type describes the encoding of a register. Its size is fixed
// at construction. The zero Type is invalid.
type Type struct {
	kind Kind
	size int
}

// Predefined scalar types.
var (
	U8  = scalar(Uint8)
	U16 = scalar(Uint16)
	U32 = scalar(Uint32)
	U64 = scalar(Uint64)
	I8  = scalar(Int8)
	I16 = scalar(Int16)
	I32 = scalar(Int32)
	I64 = scalar(Int64)
	F16 = scalar(Float16)
	F32 = scalar(Float32)
	F64 = scalar(Float64)
)

func scalar(k Kind) Type {
	return Type{kind: k, size: kindSizes[k]}
}

// Array returns the type of an opaque byte array of length n.
// It panics if n is not positive.
func Array(n int) Type {
	if n <= 0 {
		panic("register: array length must be positive")
	}
	return Type{kind: Bytes, size: n}
}

func (t Type) Kind() Kind { return t.kind }

// Size returns the number of bytes a value of this type occupies.
func (t Type) Size() int { return t.size }

func (t Type) Valid() bool { return t.kind != 0 && t.size > 0 }

func (t Type) String() string {
	if t.kind == Bytes {
		return "u8[" + strconv.Itoa(t.size) + "]"
	}
	return t.kind.String()
}

// Decode returns the value stored in b, which must be
// exactly t.Size() bytes long. Integers are returned as the
// matching Go type, f16 and f32 as float32, f64 as float64,
// and arrays as a copy of b.
func (t Type) Decode(b []byte) (v interface{}, err error) {
	if len(b) != t.size {
		err = &CodecError{Type: t, Len: len(b)}
		return
	}
	switch t.kind {
	case Uint8:
		v = b[0]
	case Uint16:
		v = ByteOrder.Uint16(b)
	case Uint32:
		v = ByteOrder.Uint32(b)
	case Uint64:
		v = ByteOrder.Uint64(b)
	case Int8:
		v = int8(b[0])
	case Int16:
		v = int16(ByteOrder.Uint16(b))
	case Int32:
		v = int32(ByteOrder.Uint32(b))
	case Int64:
		v = int64(ByteOrder.Uint64(b))
	case Float16:
		v = float16.Frombits(ByteOrder.Uint16(b)).Float32()
	case Float32:
		v = math.Float32frombits(ByteOrder.Uint32(b))
	case Float64:
		v = math.Float64frombits(ByteOrder.Uint64(b))
	case Bytes:
		v = append([]byte(nil), b...)
	default:
		err = &CodecError{Type: t, Len: len(b)}
	}
	return
}

// Encode returns the t.Size() bytes representing v. Numeric values
// that do not fit are truncated or wrap around silently; an error
// is returned only if v has a Go type that cannot be converted.
func (t Type) Encode(v interface{}) ([]byte, error) {
	b := make([]byte, t.size)
	err := t.Put(b, v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Put encodes v into b[:t.Size()].
func (t Type) Put(b []byte, v interface{}) error {
	if len(b) < t.size {
		return &CodecError{Type: t, Len: len(b)}
	}
	b = b[:t.size]
	if t.kind == Bytes {
		src, ok := asBytes(v)
		if !ok {
			return &CodecError{Type: t, Len: len(b), Value: v}
		}
		n := copy(b, src)
		for i := n; i < len(b); i++ {
			b[i] = 0
		}
		return nil
	}
	if t.kind.IsFloat() {
		f, ok := asFloat(v)
		if !ok {
			return &CodecError{Type: t, Len: len(b), Value: v}
		}
		switch t.kind {
		case Float16:
			ByteOrder.PutUint16(b, float16.Fromfloat32(float32(f)).Bits())
		case Float32:
			ByteOrder.PutUint32(b, math.Float32bits(float32(f)))
		case Float64:
			ByteOrder.PutUint64(b, math.Float64bits(f))
		}
		return nil
	}
	u, ok := asUint(v)
	if !ok {
		return &CodecError{Type: t, Len: len(b), Value: v}
	}
	switch t.size {
	case 1:
		b[0] = byte(u)
	case 2:
		ByteOrder.PutUint16(b, uint16(u))
	case 4:
		ByteOrder.PutUint32(b, uint32(u))
	case 8:
		ByteOrder.PutUint64(b, u)
	default:
		return &CodecError{Type: t, Len: len(b), Value: v}
	}
	return nil
}

// asUint returns the two's complement bit pattern of an integer,
// or the value of a float truncated towards zero.
func asUint(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case int:
		return uint64(x), true
	case int8:
		return uint64(x), true
	case int16:
		return uint64(x), true
	case int32:
		return uint64(x), true
	case int64:
		return uint64(x), true
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case uintptr:
		return uint64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float32:
		return floatBits(float64(x)), true
	case float64:
		return floatBits(x), true
	}
	return 0, false
}

func floatBits(f float64) uint64 {
	if f < 0 {
		return uint64(int64(f))
	}
	return uint64(f)
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func asBytes(v interface{}) ([]byte, bool) {
	switch x := v.(type) {
	case []byte:
		return x, true
	case string:
		return []byte(x), true
	case []int:
		b := make([]byte, len(x))
		for i, e := range x {
			b[i] = byte(e)
		}
		return b, true
	case []interface{}:
		b := make([]byte, len(x))
		for i, e := range x {
			u, ok := asUint(e)
			if !ok {
				return nil, false
			}
			b[i] = byte(u)
		}
		return b, true
	}
	return nil, false
}
