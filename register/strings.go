package register

// A StringFilter transforms the raw bytes of a text register.
type StringFilter func([]byte) []byte

// DecodeString returns the text stored in a byte array register,
// after applying the filters in order.
func DecodeString(buf []byte, filters ...StringFilter) string {
	for _, f := range filters {
		buf = f(buf)
	}
	return string(buf)
}

// Bytes not written by a device read as 0 or 0xFF.
func isFill(c byte) bool {
	return c == 0 || c == 0xFF
}

// StopAtZero truncates buf at the first NUL or 0xFF byte.
// Other bytes, including those outside of ASCII, are kept.
func StopAtZero(buf []byte) []byte {
	for i, c := range buf {
		if isFill(c) {
			return buf[:i]
		}
	}
	return buf
}

func TrimLeftSpace(buf []byte) []byte {
	for len(buf) != 0 && (buf[0] == ' ' || isFill(buf[0])) {
		buf = buf[1:]
	}
	return buf
}

func TrimRightSpace(buf []byte) []byte {
	for n := len(buf); n != 0 && (buf[n-1] == ' ' || isFill(buf[n-1])); n-- {
		buf = buf[:n-1]
	}
	return buf
}

// EncodeString stores s into dest, padding it with zero bytes.
// Excess characters are dropped.
func EncodeString(dest []byte, s string) {
	n := copy(dest, s)
	for i := n; i < len(dest); i++ {
		dest[i] = 0
	}
}
