package ltbus

import (
	"errors"
	"sync"
)

// RequestStats counts requests by outcome. On the slave side
// a request is every frame the endpoint has received.
type RequestStats struct {
	mu  sync.Mutex
	Num RequestCounts
}

type RequestCounts struct {
	All      int
	Invalid  int
	Timeout  int
	Foreign  int
	Rejected int
	Other    int
}

func (st *RequestStats) Percentage(num int) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Num.All == 0 {
		return 0
	}
	return 100 * float64(num) / float64(st.Num.All)
}

// Update classifies err and increments the matching counters.
// Frames addressed to another slave count as Foreign; errors
// wrapping a register error (unknown buffer, out of bounds)
// count as Rejected.
func (st *RequestStats) Update(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Num.All++
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, ErrSlaveIDMismatch):
		st.Num.Foreign++
	case MsgInvalid(err):
		st.Num.Invalid++
	case errors.Is(err, ErrTimeout):
		st.Num.Timeout++
	case errors.Is(err, ErrRejected):
		st.Num.Rejected++
	default:
		st.Num.Other++
	}
}

func (st *RequestStats) Snapshot() RequestCounts {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.Num
}
