package ltbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/knieriem/serframe"

	"github.com/knieriem/ltbus/capture"
)

// Bus is the master side of an LT-BUS network.
type Bus interface {
	ReadRegisters(slaveID uint8, addr uint16, n int, opts ...ReqOption) ([]byte, error)
	WriteRegisters(slaveID uint8, addr uint16, data []byte, opts ...ReqOption) error
}

// A Master sends requests over a byte stream connected to one or
// more slaves. Only one request is outstanding at a time.
type Master struct {
	conn    io.Writer
	name    string
	connID  string
	stream  *serframe.Stream
	buf     []byte
	readErr error
	exited  chan struct{}
	mu      sync.Mutex

	// ExitC receives io.EOF once the reader goroutine has
	// terminated, after the transport failed or was closed.
	ExitC <-chan error

	Tracef          func(format string, a ...interface{})
	Logger          *slog.Logger
	Capture         capture.Logger
	ResponseTimeout time.Duration

	// InterByteTimeout is the time a response may pause
	// before it is considered truncated. It must not be zero.
	InterByteTimeout time.Duration

	RequestStats RequestStats
}

// NewMaster returns a Master communicating over conn. Name is
// used in traces and log messages.
func NewMaster(conn io.ReadWriter, name string) *Master {
	m := new(Master)
	m.conn = conn
	m.name = name
	m.connID = uuid.New().String()
	m.ResponseTimeout = 1000 * time.Millisecond
	m.InterByteTimeout = 100 * time.Millisecond
	m.buf = make([]byte, 512)

	rbuf := make([]byte, 512)
	rf := func() ([]byte, error) {
		n, err := conn.Read(rbuf)
		if err != nil {
			// any transport error terminates the stream
			m.readErr = err
			return rbuf[:n], io.EOF
		}
		return rbuf[:n], nil
	}
	m.stream = serframe.NewStream(conn,
		serframe.WithInternalReadBytesFunc(rf),
		serframe.ForwardUnsolicited(unsolicited{m}))
	exitC := make(chan error, 1)
	m.ExitC = exitC
	m.exited = make(chan struct{})
	go func() {
		err := <-m.stream.ExitC
		close(m.exited)
		exitC <- err
	}()
	return m
}

func (m *Master) Name() string {
	return m.name
}

// ConnectionID identifies the master's session in logs and captures.
func (m *Master) ConnectionID() string {
	return m.connID
}

func (m *Master) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// unsolicited receives bytes arriving while no request is pending.
type unsolicited struct {
	m *Master
}

func (u unsolicited) Write(b []byte) (int, error) {
	u.m.logger().Warn("discarding unsolicited bytes", "conn", u.m.connID, "n", len(b), "frame", hexBytes(b))
	u.m.capture(capture.DirectionIn, b, errUnsolicited)
	return len(b), nil
}

var errUnsolicited = Error("unsolicited data")

type ReqOption func(*reqOptions)

type reqOptions struct {
	timeout                time.Duration
	timeoutIncr            time.Duration
	nRetriesOnTimeout      int
	nRetriesOnInvalidReply int
	retryDelay             time.Duration
}

func WithTimeout(d time.Duration) ReqOption {
	return func(r *reqOptions) {
		r.timeout = d
	}
}

// RetryOnTimeout repeats a READ request up to n times if no response
// arrives; the timeout is increased by timeoutIncr with each retry.
func RetryOnTimeout(n int, timeoutIncr time.Duration) ReqOption {
	return func(r *reqOptions) {
		r.nRetriesOnTimeout = n
		r.timeoutIncr = timeoutIncr
	}
}

// RetryOnInvalidReply repeats a READ request up to n times if the
// response is malformed, as reported by MsgInvalid.
func RetryOnInvalidReply(n int, retryDelay time.Duration) ReqOption {
	return func(r *reqOptions) {
		r.nRetriesOnInvalidReply = n
		r.retryDelay = retryDelay
	}
}

// ReadRegisters reads n bytes starting at addr from a slave.
func (m *Master) ReadRegisters(slaveID uint8, addr uint16, n int, opts ...ReqOption) ([]byte, error) {
	if n < 0 || n > MaxPayload {
		return nil, ErrMaxPayloadExceeded
	}
	req := &Request{SlaveID: slaveID, Function: FnRead, Address: addr, Length: uint16(n)}
	resp, err := m.Request(req, opts...)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// WriteRegisters writes data starting at addr. Slaves do not
// acknowledge writes, so success only means the frame was sent.
func (m *Master) WriteRegisters(slaveID uint8, addr uint16, data []byte, opts ...ReqOption) error {
	if len(data) > MaxPayload {
		return ErrMaxPayloadExceeded
	}
	req := &Request{SlaveID: slaveID, Function: FnWrite, Address: addr, Payload: data}
	_, err := m.Request(req, opts...)
	return err
}

// Request sends req. For READ requests it waits for the response
// and verifies it against the request; the response to a WRITE
// request is always nil.
func (m *Master) Request(req *Request, opts ...ReqOption) (resp *Response, err error) {
	var rqo reqOptions
	rqo.timeout = m.ResponseTimeout
	for _, o := range opts {
		o(&rqo)
	}
	if !req.Function.IsRequest() {
		return nil, &FunctionError{Fn: req.Function}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		m.RequestStats.Update(err)
	}()

	frame, err := req.Encode()
	if err != nil {
		return
	}
	expectResp := req.Function == FnRead
	nRetries := 0
	var buf []byte

retry:
	select {
	case <-m.exited:
		err = m.transportErr(io.EOF)
		return
	default:
	}
	if expectResp {
		err = m.stream.StartReception(m.recvBuf(req))
		if err != nil {
			err = m.transportErr(err)
			return
		}
	}
	_, err = m.conn.Write(frame)
	if err != nil {
		if expectResp {
			m.cancelReception()
		}
		return
	}
	m.trace(capture.DirectionOut, frame, nil)
	if !expectResp {
		return
	}

	buf, err = m.stream.ReadFrame(context.Background(),
		serframe.WithInitialTimeout(rqo.timeout),
		serframe.WithInterByteTimeout(m.InterByteTimeout),
		serframe.WithFrameInterceptor(interceptFrame))
	switch {
	case err == nil:
		resp, err = checkResponse(req, buf)
	case errors.Is(err, serframe.ErrTimeout):
		err = ErrTimeout
	case errors.Is(err, serframe.ErrOverflow):
		err = NewInvalidLen(MsgContextFrame, len(buf), HeaderSize+int(req.Length)+TrailerSize)
	case errors.Is(err, io.EOF):
		err = m.transportErr(err)
	}
	m.trace(capture.DirectionIn, buf, err)
	if err != nil {
		resp = nil
		if errors.Is(err, ErrTimeout) {
			if nRetries < rqo.nRetriesOnTimeout {
				nRetries++
				rqo.timeout += rqo.timeoutIncr
				m.logger().Debug("retrying request", "conn", m.connID, "slave", req.SlaveID, "addr", hexAddr(req.Address), "error", err)
				goto retry
			}
		} else if nRetries < rqo.nRetriesOnInvalidReply && MsgInvalid(err) {
			if rqo.retryDelay > 0 {
				time.Sleep(rqo.retryDelay)
			}
			nRetries++
			m.logger().Debug("retrying request", "conn", m.connID, "slave", req.SlaveID, "addr", hexAddr(req.Address), "error", err)
			goto retry
		}
		return
	}
	return
}

// cancelReception returns without waiting once the
// reader has terminated.
func (m *Master) cancelReception() {
	done := make(chan struct{})
	go func() {
		m.stream.CancelReception()
		close(done)
	}()
	select {
	case <-done:
	case <-m.exited:
	}
}

// recvBuf returns a buffer large enough for the response to req,
// with some room for a reply that is longer than announced.
func (m *Master) recvBuf(req *Request) []byte {
	n := HeaderSize + int(req.Length) + TrailerSize + 64
	if len(m.buf) < n {
		m.buf = make([]byte, n)
	}
	return m.buf[:n]
}

// transportErr returns the error that terminated the reader,
// if err is the io.EOF reported by the stream.
func (m *Master) transportErr(err error) error {
	if errors.Is(err, io.EOF) && m.readErr != nil {
		return m.readErr
	}
	return err
}

func interceptFrame(frame, _ []byte) (serframe.FrameStatus, error) {
	if FrameComplete(frame) {
		return serframe.CompleteSkipTimeout, nil
	}
	return serframe.None, nil
}

func checkResponse(req *Request, buf []byte) (*Response, error) {
	resp, err := DecodeResponse(buf)
	if err != nil {
		return nil, err
	}
	if resp.SlaveID != req.SlaveID {
		return nil, NewSlaveIDMismatch(req.SlaveID, resp.SlaveID)
	}
	if resp.Address != req.Address {
		return nil, &MismatchError{Field: "addr", Want: req.Address, Have: resp.Address}
	}
	if len(resp.Payload) != int(req.Length) {
		return nil, NewInvalidLen(MsgContextPayload, len(resp.Payload), int(req.Length))
	}
	return resp, nil
}

func (m *Master) trace(dir capture.Direction, frame []byte, err error) {
	if m.Tracef != nil {
		if err != nil {
			m.Tracef("%s %s [%d] % x error: %v\n", dir.Arrow(), m.name, len(frame), frame, err)
		} else {
			m.Tracef("%s %s [%d] % x\n", dir.Arrow(), m.name, len(frame), frame)
		}
	}
	m.capture(dir, frame, err)
}

func (m *Master) capture(dir capture.Direction, frame []byte, err error) {
	if m.Capture == nil {
		return
	}
	e := capture.NewEvent(m.connID, dir, capture.RoleMaster, frame, err)
	e.Peer = m.name
	m.Capture.Log(e)
}
