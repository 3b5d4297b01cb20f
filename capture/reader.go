package capture

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Role         *Role
	SlaveID      *uint8

	// TimeStart and TimeEnd bound the half-open interval
	// [TimeStart, TimeEnd).
	TimeStart *time.Time
	TimeEnd   *time.Time

	// ErrorsOnly selects events carrying an error.
	ErrorsOnly bool
}

func (f *Filter) matches(e Event) bool {
	if f.ConnectionID != "" && e.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Role != nil && e.Role != *f.Role {
		return false
	}
	if f.SlaveID != nil && e.SlaveID != *f.SlaveID {
		return false
	}
	if f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.ErrorsOnly && e.Error == "" {
		return false
	}
	return true
}

// Reader streams events from a capture.
type Reader struct {
	c       io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader returns a Reader decoding events from r.
func NewReader(r io.Reader, filter Filter) *Reader {
	rd := &Reader{
		decoder: NewDecoder(r),
		filter:  filter,
	}
	if c, ok := r.(io.Closer); ok {
		rd.c = c
	}
	return rd
}

// Open returns a Reader for the capture file at path.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReader(f, filter), nil
}

// Next returns the next matching event, or io.EOF.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
