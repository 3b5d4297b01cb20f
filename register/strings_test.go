package register

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		filters []StringFilter
		want    string
	}{
		{"zero padded", "RE850\x00\x00\x00", []StringFilter{StopAtZero}, "RE850"},
		{"erased flash", "RE850\xff\xff", []StringFilter{StopAtZero}, "RE850"},
		{"latin-1", "temp 25\xb0C ok\x00\x00", []StringFilter{StopAtZero}, "temp 25\xb0C ok"},
		{"high bytes", "\xe9t\xe9\x00x", []StringFilter{StopAtZero}, "\xe9t\xe9"},
		{"empty", "\x00abc", []StringFilter{StopAtZero}, ""},
		{"unfiltered", "a\x00b", nil, "a\x00b"},
		{"trim", "  \xb0C \x00\xff", []StringFilter{TrimLeftSpace, TrimRightSpace}, "\xb0C"},
		{"trim all", " \x00\xff ", []StringFilter{TrimLeftSpace, TrimRightSpace}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeString([]byte(tt.in), tt.filters...))
		})
	}
}

func TestEncodeString(t *testing.T) {
	b := []byte("xxxxxx")
	EncodeString(b, "25\xb0C")
	assert.Equal(t, []byte("25\xb0C\x00\x00"), b)

	EncodeString(b[:3], "abcdef")
	assert.Equal(t, []byte("abcC\x00\x00"), b)
}
