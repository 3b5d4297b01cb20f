package serial

import (
	"io"
	"strings"

	"github.com/knieriem/serport"
	"github.com/knieriem/serport/serenum"

	"github.com/knieriem/ltbus/netconn"
)

func portInfo(name string) string {
	return serenum.Lookup(name).Format(nil)
}

// openPort opens the port named by cf.Device, or the first
// available one. Options are serport control commands that are
// merged into serport.StdConf.
func openPort(cf *netconn.Conf) (c io.ReadWriteCloser, portName string, err error) {
	inictl := strings.Join(cf.Options, " ")

	portName, err = serport.Choose(cf.Device)
	if err != nil {
		return nil, "", err
	}
	port, err := serport.Open(portName, serport.MergeCtlCmds(serport.StdConf, inictl))
	if err != nil {
		return nil, portName, err
	}
	return port, portName, nil
}

var serialPorts = netconn.InterfaceGroup{
	Name:       "Serial ports",
	Interfaces: serialInterfaces,
	SortPrefix: "A01",
	Type:       "serport",
}

func serialInterfaces() (list []netconn.Interface) {
	for _, info := range serenum.Ports() {
		list = append(list, netconn.Interface{
			Name: info.Device,
			Desc: info.Format(nil),
			Elem: info,
		})
	}
	return
}
