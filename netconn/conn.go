// Package netconn provides a registry of byte stream transports
// that can be selected by configuration or by a short spec string
// like "tcp:127.0.0.1:6543" or "serial:/dev/ttyUSB0,b115200".
package netconn

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/knieriem/io/stream"
	"gopkg.in/yaml.v3"
)

var protos = make(map[string]*Proto, 4)
var defaultProto *Proto

func SetDefaultProto(name string) {
	defaultProto = protos[name]
}

func RegisterProtocol(proto *Proto) {
	protos[proto.Name] = proto
}

func (c *Conf) proto() (p *Proto, err error) {
	p, ok := protos[c.Proto]
	if !ok {
		err = errors.New("netconn: invalid proto: " + c.Proto)
	}
	return
}

const (
	FieldAddr = 1 << iota
	FieldDev
	FieldOpt
	endField  = 1 << iota
	FieldMask = endField - 1
	DevFields = FieldDev | FieldOpt
)

var fieldNameMap = map[int]string{
	FieldAddr: "addr",
	FieldDev:  "device",
	FieldOpt:  "options",
}

type Proto struct {
	Name           string
	Dial           func(*Conf) (*Conn, error)
	RequiredFields int
	OptionalFields int
	InterfaceGroup *InterfaceGroup
}

func (p *Proto) UnexpectedFields() int {
	return ^(p.RequiredFields | p.OptionalFields) & FieldMask
}

func (p *Proto) fieldFlags() int {
	return p.RequiredFields | p.OptionalFields
}

// A Conn is an open transport.
type Conn struct {
	io.ReadWriteCloser
	Addr       string
	Device     string
	DeviceInfo string
}

// Conf describes how to reach a transport. It is usually
// read from a YAML document or created by ParseSpec.
type Conf struct {
	seen map[string]bool

	Proto   string   `yaml:"proto"`
	Name    string   `yaml:"name,omitempty"`
	Addr    IPAddr   `yaml:"addr,omitempty"`
	Device  string   `yaml:"device,omitempty"`
	Options []string `yaml:"options,omitempty"`

	Default bool `yaml:"-"`
}

func (c *Conf) UnmarshalYAML(n *yaml.Node) error {
	type plain Conf
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = Conf(p)
	c.seen = make(map[string]bool, len(n.Content)/2)
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			c.seen[n.Content[i].Value] = true
		}
	}
	return c.Postprocess()
}

// Seen reports whether field has been set. For configurations
// not read from YAML, a field counts as seen if it is not empty.
func (c *Conf) Seen(field string) bool {
	if c.seen != nil {
		return c.seen[field]
	}
	switch field {
	case "addr":
		return c.Addr != ""
	case "device":
		return c.Device != ""
	case "options":
		return len(c.Options) != 0
	}
	return false
}

// ConnWrapper, if set, wraps the transport of each dialed
// connection; it is called with the connection's address.
// Closing the connection still closes the original transport.
var ConnWrapper stream.Wrapper

func (c *Conf) Dial() (conn *Conn, err error) {
	p, err := c.proto()
	if err != nil {
		return
	}
	conn, err = p.Dial(c)
	if err != nil {
		return
	}
	f := conn.ReadWriteCloser
	conn.ReadWriteCloser = stream.InheritCloser(ConnWrapper.Wrap(f, conn.Addr), f)
	return
}

func (c *Conf) MakeAddr(name string, addOptions bool) (addr string) {
	addr = c.Name
	if addr == "" {
		addr = c.Proto
	}
	addr += ":" + name
	if addOptions && len(c.Options) != 0 {
		addr += "," + strings.Join(c.Options, ",")
	}
	return
}

func (c *Conf) SupportsOptions() bool {
	p, ok := protos[c.Proto]
	return ok && (p.fieldFlags()&FieldOpt != 0)
}

func (c *Conf) InterfaceName() string {
	p, ok := protos[c.Proto]
	if !ok {
		return ""
	}
	flags := p.fieldFlags()
	if flags&FieldDev != 0 {
		return c.Device
	}
	if flags&FieldAddr != 0 {
		return string(c.Addr)
	}
	return ""
}

func (c *Conf) Interfaces() []Interface {
	p, ok := protos[c.Proto]
	if ok && p.InterfaceGroup != nil {
		return p.InterfaceGroup.Interfaces()
	}
	return nil
}

// Postprocess checks the fields present against those the
// protocol expects. A name ending with '*' marks the default
// entry of a ConfList.
func (c *Conf) Postprocess() (err error) {
	if c.Proto == "" {
		err = errors.New("netconn: missing value for protocol")
		return
	}
	p, ok := protos[c.Proto]
	if !ok {
		// unsupported, ignore for now
		return
	}
	unexpected := p.UnexpectedFields()
	for f := 1; f < endField; f <<= 1 {
		field := fieldNameMap[f]
		if p.RequiredFields&f != 0 && !c.Seen(field) {
			return errors.New("netconn: required field missing: " + field)
		}
		if unexpected&f != 0 && c.Seen(field) {
			return errors.New("netconn: unexpected field: " + field)
		}
	}
	if strings.HasSuffix(c.Name, "*") {
		c.Default = true
		c.Name = c.Name[:len(c.Name)-1]
	}
	return
}

type IPAddr string

func (a *IPAddr) UnmarshalYAML(n *yaml.Node) (err error) {
	*a = IPAddr(n.Value)
	_, err = a.Complete(DefaultPort)
	return
}

// DefaultPort is the TCP port LT-BUS devices connect to.
const DefaultPort = "6543"

// Complete adds defaultPort to a if it lacks a port.
func (a IPAddr) Complete(defaultPort string) (hostport string, err error) {
	addr := string(a)
	hostport = addr
	switch {
	case strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]"):
		fallthrough
	case strings.LastIndex(addr, ":") == -1:
		hostport = addr + ":" + defaultPort
	}
	_, _, err = net.SplitHostPort(hostport)
	return
}

type ConfList []*Conf

func (list ConfList) Names() []string {
	names := make([]string, len(list))
	for i, c := range list {
		name := c.Name
		if name == "" {
			name = c.Proto
		}
		names[i] = name
	}
	return names
}

func (list ConfList) Postprocess() (err error) {
	usedProtos := make(map[string]bool, len(protos))
	usedNames := make(map[string]bool, len(protos))
	foundDefault := false

	for _, c := range list {
		usedProtos[c.Proto] = true
		if name := c.Name; name != "" {
			if usedNames[name] {
				err = errors.New("netconn: name used more than once: " + name)
				return
			}
			usedNames[name] = true
		}
		if c.Default {
			if foundDefault {
				err = errors.New("netconn: more than one marked as default")
				return
			}
			foundDefault = true
		}
	}
	for _, c := range list {
		if usedProtos[c.Name] {
			err = errors.New("netconn: proto name used as netconn name: " + c.Name)
			return
		}
	}
	return
}

func (list ConfList) Default() (index int) {
	for i, c := range list {
		if c.Default {
			index = i
			break
		}
	}
	return
}

type nameSpec struct {
	name    string
	options []string
}

func splitSpec(connSpec string) (ns []nameSpec) {
	for _, f := range strings.SplitN(connSpec, ":", 2) {
		fs := strings.Split(f, ",")
		ns = append(ns, nameSpec{name: fs[0], options: fs[1:]})
	}
	return
}

// derive returns a modified copy of c if the spec overrides
// any of its fields, or nil.
func (c *Conf) derive(f []nameSpec) (dc *Conf, err error) {
	var m Conf

	m = *c
	p, err := c.proto()
	if err != nil {
		return
	}

	flags := p.fieldFlags()
	if len(f) == 2 {
		if s := f[1].name; s != "" {
			if flags&FieldDev != 0 {
				m.Device = s
				dc = &m
			}
			if flags&FieldAddr != 0 {
				m.Addr = IPAddr(s)
				dc = &m
			}
		}
		if s := f[1].options; len(s) != 0 {
			if flags&FieldOpt == 0 {
				err = errors.New("netconn: options not supported by " + p.Name)
				return
			}
			m.Options = s
			dc = &m
		}
	}
	if s := f[0].options; len(s) != 0 {
		if flags&FieldOpt == 0 {
			err = errors.New("netconn: options not supported by " + p.Name)
			return
		}
		m.Options = s
		dc = &m
	}
	return
}

func (list ConfList) Match(connSpec string) (index int, mod *Conf, err error) {
	if connSpec == "" {
		index = list.Default()
		return
	}
	if len(list) == 0 {
		err = errors.New("netconn: no network connections configured")
		return
	}
retry:
	f := splitSpec(connSpec)
	if net := f[0].name; net != "" {
		// name present, select matching entry
		for i, c := range list {
			if c.Name == net || c.Proto == net {
				index = i
				mod, err = c.derive(f)
				return
			}
		}
		if len(f) == 2 || defaultProto == nil {
			err = errors.New("netconn: no matching network connection")
			return
		}
		connSpec = defaultProto.Name + ":" + connSpec
		goto retry
	}
	index = list.Default()
	mod, err = list[index].derive(f)
	return
}

func (list ConfList) Dial(connSpec string) (conn *Conn, err error) {
	index, cf, err := list.Match(connSpec)
	if err != nil {
		return
	}
	if cf == nil {
		cf = list[index]
	}
	return cf.Dial()
}

// ParseSpec creates a Conf from a spec of the form
// proto[,options][:addr-or-device[,options]]. If proto is not
// a registered protocol, the default protocol is assumed.
func ParseSpec(spec string) (cf *Conf, err error) {
	f := splitSpec(spec)
	if _, ok := protos[f[0].name]; !ok {
		if defaultProto == nil {
			err = errors.New("netconn: unknown protocol: " + f[0].name)
			return
		}
		f = splitSpec(defaultProto.Name + ":" + spec)
	}
	c := &Conf{Proto: f[0].name}
	cf, err = c.derive(f)
	if err != nil {
		return
	}
	if cf == nil {
		cf = c
	}
	err = cf.Postprocess()
	return
}
