// Package slave implements the device side of an LT-BUS network:
// an endpoint that reads request frames from a byte stream and
// serves them from the register buffers of a router.
package slave

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/knieriem/io/stream"

	"github.com/knieriem/ltbus"
	"github.com/knieriem/ltbus/capture"
	"github.com/knieriem/ltbus/debug"
	"github.com/knieriem/ltbus/netconn"
	"github.com/knieriem/ltbus/register"
)

var ErrNotConnected = ltbus.Error("endpoint not connected")

// An Endpoint answers requests addressed to its slave ID. It owns
// its transport, which is attached or dialed explicitly.
//
// Frames that are malformed, addressed to another slave, or that
// cannot be served by the router are logged and dropped; only a
// failing transport terminates Serve.
type Endpoint struct {
	ID     uint8
	Router *register.Router

	Logger  *slog.Logger
	Capture capture.Logger

	// Locker, if set, is held while a request is dispatched, so
	// that other writers of the router's buffers can synchronize.
	Locker sync.Locker

	Stats ltbus.RequestStats

	// ConnWrapper, if set, wraps each attached transport;
	// it is called with the new connection id.
	ConnWrapper stream.Wrapper

	mu     sync.Mutex
	rw     io.ReadWriter
	closer io.Closer
	connID string
	peer   string

	buf []byte

	// called with true before a header is awaited,
	// and with false once it has arrived
	idleHook func(idle bool)
}

func New(id uint8, r *register.Router) *Endpoint {
	return &Endpoint{ID: id, Router: r}
}

func (e *Endpoint) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Attach makes rw the endpoint's transport. If rw implements
// io.Closer, it is closed by Disconnect. Peer names the remote
// side in logs.
func (e *Endpoint) Attach(rw io.ReadWriter, peer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connID = uuid.New().String()
	e.rw = e.ConnWrapper.Wrap(rw, e.connID)
	e.closer, _ = rw.(io.Closer)
	e.peer = peer
	e.logger().Info("transport attached", "conn", e.connID, "peer", peer, "slave", e.ID)
}

// Connect dials the transport described by cf and attaches it.
func (e *Endpoint) Connect(cf *netconn.Conf) error {
	conn, err := cf.Dial()
	if err != nil {
		return fmt.Errorf("slave: connect: %w", err)
	}
	e.Attach(conn, conn.Addr)
	return nil
}

// Disconnect closes and detaches the transport.
func (e *Endpoint) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rw == nil {
		return ErrNotConnected
	}
	var err error
	if e.closer != nil {
		err = e.closer.Close()
	}
	e.logger().Info("transport detached", "conn", e.connID, "peer", e.peer)
	e.rw = nil
	e.closer = nil
	return err
}

func (e *Endpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rw != nil
}

// ConnectionID identifies the current transport session.
func (e *Endpoint) ConnectionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connID
}

// session describes the transport a request was received on.
type session struct {
	rw   io.ReadWriter
	id   string
	peer string
}

func (e *Endpoint) session() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rw == nil {
		return nil
	}
	return &session{rw: e.rw, id: e.connID, peer: e.peer}
}

// Serve handles requests until the transport fails.
func (e *Endpoint) Serve() error {
	for {
		err := e.ServeOne()
		if err != nil {
			return err
		}
	}
}

// ServeOne reads one frame, or one header that is rejected, and
// handles it. It returns an error only if the transport fails.
func (e *Endpoint) ServeOne() error {
	s := e.session()
	if s == nil {
		return ErrNotConnected
	}
	rw := s.rw
	if cap(e.buf) < 64 {
		e.buf = make([]byte, 0, 512)
	}

	// idle: wait for a header
	if e.idleHook != nil {
		e.idleHook(true)
	}
	hdr := e.buf[:ltbus.HeaderSize]
	_, err := io.ReadFull(rw, hdr)
	if err != nil {
		return err
	}
	if e.idleHook != nil {
		e.idleHook(false)
	}
	if hdr[0] != ltbus.StartByte {
		e.drop(s, hdr, ltbus.ErrFraming)
		return nil
	}
	n, err := ltbus.BodyLen(hdr)
	if err != nil {
		e.drop(s, hdr, err)
		return nil
	}

	// body
	size := ltbus.HeaderSize + n
	if cap(e.buf) < size {
		b := make([]byte, size)
		copy(b, hdr)
		e.buf = b
	}
	frame := e.buf[:size]
	_, err = io.ReadFull(rw, frame[ltbus.HeaderSize:])
	if err != nil {
		return err
	}
	if frame[size-1] != ltbus.EndByte {
		e.drop(s, frame, ltbus.ErrFraming)
		return nil
	}
	req, err := ltbus.DecodeFrame(frame)
	if err != nil {
		e.drop(s, frame, err)
		return nil
	}
	if req.SlaveID != e.ID {
		e.drop(s, frame, ltbus.NewSlaveIDMismatch(e.ID, req.SlaveID))
		return nil
	}
	e.record(s, capture.DirectionIn, frame, nil)
	return e.dispatch(s, req)
}

func (e *Endpoint) dispatch(s *session, req *ltbus.Request) (err error) {
	if e.Locker != nil {
		e.Locker.Lock()
		defer e.Locker.Unlock()
	}
	switch req.Function {
	case ltbus.FnRead:
		var data []byte
		data, err = e.Router.HandleRead(req.Address, int(req.Length))
		if err != nil {
			e.reject(s, req, err)
			return nil
		}
		resp := ltbus.EncodeReadResponse(e.ID, req.Address, data)
		_, err = s.rw.Write(resp)
		e.record(s, capture.DirectionOut, resp, err)
		if err != nil {
			return err
		}
		e.logger().Debug("read", "conn", s.id, "addr", hexAddr(req.Address), "n", req.Length)

	case ltbus.FnWrite:
		err = e.Router.HandleWrite(req.Address, req.Payload)
		if err != nil {
			e.reject(s, req, err)
			return nil
		}
		e.logger().Debug("write", "conn", s.id, "addr", hexAddr(req.Address), "n", len(req.Payload))
	}
	e.Stats.Update(nil)
	return nil
}

// drop logs a frame that is not handled.
func (e *Endpoint) drop(s *session, frame []byte, err error) {
	e.Stats.Update(err)
	e.record(s, capture.DirectionIn, frame, err)

	args := []any{"conn", s.id, "frame", debug.FormatFrame("->", frame, nil, s.peer), "error", err}
	var ce *ltbus.CRCError
	if errors.As(err, &ce) {
		args = append(args, "crc", fmt.Sprintf("received %04X, computed %04X", ce.Have, ce.Want))
	}
	if errors.Is(err, ltbus.ErrSlaveIDMismatch) {
		e.logger().Debug("ignoring frame for other slave", args...)
		return
	}
	e.logger().Warn("dropping frame", args...)
}

func (e *Endpoint) reject(s *session, req *ltbus.Request, err error) {
	err = fmt.Errorf("%w: %w", ltbus.ErrRejected, err)
	e.Stats.Update(err)
	e.logger().Error("request rejected",
		"conn", s.id,
		"slave", req.SlaveID,
		"fn", req.Function.String(),
		"addr", hexAddr(req.Address),
		"error", err)
}

func (e *Endpoint) record(s *session, dir capture.Direction, frame []byte, err error) {
	if e.Capture == nil {
		return
	}
	ev := capture.NewEvent(s.id, dir, capture.RoleSlave, frame, err)
	ev.Peer = s.peer
	e.Capture.Log(ev)
}

func hexAddr(a uint16) string {
	return fmt.Sprintf("0x%04X", a)
}
