// Copyright 2012 The modbus Authors.  All rights reserved.
// For small parts have been copied from net/http/server.go:
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slave

import (
	"net"
	"net/http"
	"time"

	"github.com/knieriem/ltbus/netconn"
)

// A Server accepts masters connecting via TCP and serves them
// using Endpoint. A value for Server with only the Endpoint field
// configured is a valid configuration.
type Server struct {
	Addr         string        // TCP address to listen on, ":6543" if empty
	Endpoint     *Endpoint     // Requests are served by this endpoint
	ReadTimeout  time.Duration // maximum duration a read may block; zero means no limit
	WriteTimeout time.Duration // maximum duration before timing out write of the response

	// ConnState specifies an optional callback function that is
	// called when a client connection changes state. See the
	// ConnState type and associated constants for details.
	ConnState func(net.Conn, ConnState)
}

// A ConnState represents the state of a client connection to a server.
// It's used by the optional Server.ConnState hook.
type ConnState int

func (c ConnState) String() string {
	return http.ConnState(c).String()
}

const (
	// ConnState values, see net/http.ConnState
	StateNew    = ConnState(http.StateNew)
	StateActive = ConnState(http.StateActive)
	StateIdle   = ConnState(http.StateIdle)
	StateClosed = ConnState(http.StateClosed)
)

// ListenAndServe listens on the TCP network address srv.Addr and then
// calls Serve to handle requests on incoming connections. If srv.Addr is
// blank, ":6543" is used.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":" + netconn.DefaultPort
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(l)
}

// Serve accepts incoming connections on the Listener l. Only one client
// is handled at a time; the next one is accepted after the endpoint's
// transport has failed.
func (srv *Server) Serve(l net.Listener) error {
	defer l.Close()
	for {
		origConn, err := l.Accept()
		if err != nil {
			return err
		}
		c := &conn{
			Conn:   origConn,
			server: srv,
		}
		c.setState(StateNew)
		srv.handleConn(c)
		c.setState(StateClosed)
	}
}

type conn struct {
	net.Conn
	server *Server
}

func (c *conn) Read(b []byte) (int, error) {
	if d := c.server.ReadTimeout; d != 0 {
		c.SetReadDeadline(time.Now().Add(d))
	}
	return c.Conn.Read(b)
}

func (c *conn) Write(b []byte) (int, error) {
	if d := c.server.WriteTimeout; d != 0 {
		c.SetWriteDeadline(time.Now().Add(d))
	}
	return c.Conn.Write(b)
}

func (c *conn) setState(state ConnState) {
	if hook := c.server.ConnState; hook != nil {
		hook(c.Conn, state)
	}
}

func (srv *Server) handleConn(c *conn) error {
	e := srv.Endpoint
	e.Attach(c, c.RemoteAddr().String())
	e.idleHook = func(idle bool) {
		if idle {
			c.setState(StateIdle)
		} else {
			c.setState(StateActive)
		}
	}
	defer func() {
		e.idleHook = nil
		e.Disconnect()
	}()

	err := e.Serve()
	e.logger().Info("client finished", "peer", c.RemoteAddr().String(), "error", err)
	return err
}
