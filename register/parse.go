package register

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

var typeNames = map[string]Type{
	"u8":  U8,
	"u16": U16,
	"u32": U32,
	"u64": U64,
	"i8":  I8,
	"i16": I16,
	"i32": I32,
	"i64": I64,
	"f16": F16,
	"f32": F32,
	"f":   F32,
	"f64": F64,
}

// ParseType parses a type spec like "u16", "F32", "u8[8]" or "u8[]".
// For "u8[]" the array length is taken from n.
func ParseType(spec string, n int) (t Type, err error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if i := strings.Index(s, "["); i != -1 {
		if !strings.HasSuffix(s, "]") {
			err = errors.New("register: missing ']' in type " + strconv.Quote(spec))
			return
		}
		if s[:i] != "u8" && s[:i] != "b" {
			err = errors.New("register: unsupported array element type " + strconv.Quote(s[:i]))
			return
		}
		if count := s[i+1 : len(s)-1]; count != "" {
			u, err1 := strconv.ParseUint(count, 0, 16)
			if err1 != nil {
				err = err1
				return
			}
			if n != 0 && n != int(u) {
				err = errors.New("register: array length mismatch in type " + strconv.Quote(spec))
				return
			}
			n = int(u)
		}
		if n <= 0 || n > WindowSize {
			err = errors.New("register: invalid array length " + strconv.Itoa(n))
			return
		}
		t = Array(n)
		return
	}
	t, ok := typeNames[s]
	if !ok {
		err = errors.New("register: unknown type " + strconv.Quote(spec))
	}
	return
}

// ParseValue parses a textual value for a register of type t.
// Integers may have a base prefix (0x, 0o, 0b). Array values are
// either quoted strings or hex digits, optionally prefixed by 0x.
func ParseValue(t Type, s string) (v interface{}, err error) {
	s = strings.TrimSpace(s)
	switch k := t.Kind(); {
	case k == Bytes:
		if strings.HasPrefix(s, `"`) {
			s, err = strconv.Unquote(s)
			if err != nil {
				return
			}
			v = []byte(s)
			return
		}
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		v, err = hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	case k.IsFloat():
		var f float64
		f, err = strconv.ParseFloat(s, 64)
		v = f
	case k.IsSigned():
		var i int64
		i, err = strconv.ParseInt(s, 0, 64)
		v = i
	default:
		var u uint64
		u, err = strconv.ParseUint(s, 0, 64)
		v = u
	}
	if err != nil {
		v = nil
	}
	return
}

// Format renders a decoded value of type t.
func (t Type) Format(v interface{}) string {
	switch x := v.(type) {
	case []byte:
		if isText(x) {
			return strconv.Quote(DecodeString(x, StopAtZero))
		}
		return "0x" + hex.EncodeToString(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	u, ok := asUint(v)
	if !ok {
		return "%!(" + t.String() + ")"
	}
	if t.kind.IsSigned() {
		return strconv.FormatInt(signExtend(u, t.size), 10)
	}
	return strconv.FormatUint(u, 10)
}

func signExtend(u uint64, size int) int64 {
	shift := 64 - 8*uint(size)
	return int64(u<<shift) >> shift
}

func isText(b []byte) bool {
	b = StopAtZero(b)
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
