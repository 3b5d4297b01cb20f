// Package tcp registers the "tcp" protocol with netconn.
package tcp

import (
	"net"
	"time"

	"github.com/knieriem/ltbus/netconn"
)

// DefaultAddr is dialed if a configuration lacks an address.
const DefaultAddr = "127.0.0.1:" + netconn.DefaultPort

// DialTimeout limits the time to establish a connection.
var DialTimeout = 5 * time.Second

func init() {
	netconn.RegisterProtocol(&netconn.Proto{
		Name:           "tcp",
		OptionalFields: netconn.FieldAddr,
		Dial:           dial,
	})
}

func dial(cf *netconn.Conf) (conn *netconn.Conn, err error) {
	a := cf.Addr
	if a == "" {
		a = DefaultAddr
	}
	addr, err := a.Complete(netconn.DefaultPort)
	if err != nil {
		return
	}
	tc, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return
	}
	conn = &netconn.Conn{
		ReadWriteCloser: tc,
		Addr:            cf.MakeAddr(addr, false),
		DeviceInfo:      tc.RemoteAddr().String(),
	}
	return
}
