// Package serial registers the "serial" protocol with netconn.
// The device is either a serial port, configured through options
// like "b115200", or a command prefixed with '!', whose standard
// input and output are used as the transport.
package serial

import (
	"io"

	"github.com/knieriem/ltbus/netconn"
)

func init() {
	netconn.RegisterProtocol(&netconn.Proto{
		Name:           "serial",
		OptionalFields: netconn.DevFields,
		Dial:           dial,
		InterfaceGroup: &serialPorts,
	})
}

func dial(cf *netconn.Conf) (conn *netconn.Conn, err error) {
	var f io.ReadWriteCloser
	var name, info string

	supportsOptions := true
	if cmd, match := parseCommand(cf.Device); match {
		f, err = cmd.Dial()
		name = cf.Device
		info = "command"
		supportsOptions = false
	} else {
		f, name, err = openPort(cf)
		if err == nil {
			info = portInfo(name)
		}
	}
	if err != nil {
		return
	}
	conn = &netconn.Conn{
		ReadWriteCloser: f,
		Addr:            cf.MakeAddr(name, supportsOptions),
		Device:          name,
		DeviceInfo:      info,
	}
	return
}
