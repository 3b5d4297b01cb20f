// Package layout reads register layouts of emulated devices
// from YAML files.
//
// A layout lists the buffers of a device, each with its base
// address and registers:
//
//	device: LT-RE850
//	slave_id: 0
//	conn: {proto: tcp, addr: 127.0.0.1:6543}
//	buffers:
//	  - base: 0xA000
//	    registers:
//	      - {name: device_id, offset: 0x000, type: u16, value: 0x1000}
//	      - {name: msg_buffer, offset: 0x007, type: "u8[]", length: 255}
//	  - base: 0xD000
//	    registers:
//	      - {name: "TMP%d", offset: 0x020, type: f32, count: 20}
//
// A register with a count describes a series of registers, placed
// stride bytes apart (by default the size of the type). The first
// "%d" in the name is replaced by the index, starting at one.
package layout

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/knieriem/ltbus/netconn"
	"github.com/knieriem/ltbus/register"
)

// File is the content of a layout file.
type File struct {
	Device  string        `yaml:"device"`
	SlaveID uint8         `yaml:"slave_id"`
	Conn    *netconn.Conf `yaml:"conn,omitempty"`
	Buffers []Buffer      `yaml:"buffers"`
}

type Buffer struct {
	Base      uint16     `yaml:"base"`
	Registers []Register `yaml:"registers"`
}

type Register struct {
	Name   string    `yaml:"name"`
	Offset uint16    `yaml:"offset"`
	Type   string    `yaml:"type"`
	Length int       `yaml:"length,omitempty"`
	Value  yaml.Node `yaml:"value,omitempty"`
	Count  int       `yaml:"count,omitempty"`
	Stride uint16    `yaml:"stride,omitempty"`
}

// LoadError provides details about a layout that could not be loaded.
type LoadError struct {
	// File is the path of the layout file, if known.
	File string

	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	s := "layout: "
	if e.File != "" {
		s += e.File + ": "
	}
	s += e.Message
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse parses a layout from YAML data.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}
	if len(f.Buffers) == 0 {
		return nil, &LoadError{Message: "no buffers defined"}
	}
	return &f, nil
}

// Load reads a layout from a file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}
	f, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return f, nil
}

// Configs returns the register configurations of b,
// with series expanded.
func (b *Buffer) Configs() ([]register.Config, error) {
	var list []register.Config
	for i := range b.Registers {
		r := &b.Registers[i]
		t, err := register.ParseType(r.Type, r.Length)
		if err != nil {
			return nil, r.fail(b, "invalid type", err)
		}
		if r.Count <= 1 {
			list = append(list, register.Reg(r.Name, r.Offset, t))
			continue
		}
		if !strings.Contains(r.Name, "%d") {
			return nil, r.fail(b, "name of a register series must contain %d", nil)
		}
		stride := int(r.Stride)
		if stride == 0 {
			stride = t.Size()
		}
		for j := 0; j < r.Count; j++ {
			off := int(r.Offset) + j*stride
			if off > 0xFFFF {
				return nil, r.fail(b, "register series exceeds the address range", nil)
			}
			name := strings.Replace(r.Name, "%d", strconv.Itoa(j+1), 1)
			list = append(list, register.Reg(name, uint16(off), t))
		}
	}
	return list, nil
}

// values returns the initial values of b's registers, indexed by name.
func (b *Buffer) values() (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for i := range b.Registers {
		r := &b.Registers[i]
		if r.Value.Kind == 0 {
			continue
		}
		t, err := register.ParseType(r.Type, r.Length)
		if err != nil {
			return nil, r.fail(b, "invalid type", err)
		}
		if r.Value.Kind != yaml.ScalarNode {
			return nil, r.fail(b, "value must be a scalar", nil)
		}
		var v interface{}
		if t.Kind() == register.Bytes && r.Value.Tag == "!!str" && r.Value.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
			v = []byte(r.Value.Value)
		} else {
			v, err = register.ParseValue(t, r.Value.Value)
			if err != nil {
				return nil, r.fail(b, "invalid value "+strconv.Quote(r.Value.Value), err)
			}
		}
		if r.Count <= 1 {
			m[r.Name] = v
			continue
		}
		for j := 0; j < r.Count; j++ {
			m[strings.Replace(r.Name, "%d", strconv.Itoa(j+1), 1)] = v
		}
	}
	return m, nil
}

func (r *Register) fail(b *Buffer, msg string, cause error) error {
	return &LoadError{
		Message: "buffer 0x" + strconv.FormatUint(uint64(b.Base), 16) + ": register " + strconv.Quote(r.Name) + ": " + msg,
		Cause:   cause,
	}
}

// Build creates the buffers of the layout, with initial values
// applied, and returns a router serving them.
func (f *File) Build() (*register.Router, error) {
	r, err := register.NewRouter()
	if err != nil {
		return nil, err
	}
	for i := range f.Buffers {
		fb := &f.Buffers[i]
		regs, err := fb.Configs()
		if err != nil {
			return nil, err
		}
		b, err := register.NewBuffer(fb.Base, regs...)
		if err != nil {
			return nil, &LoadError{Message: "invalid buffer", Cause: err}
		}
		if err = r.Add(b); err != nil {
			return nil, &LoadError{Message: "invalid buffer", Cause: err}
		}
		values, err := fb.values()
		if err != nil {
			return nil, err
		}
		for _, c := range regs {
			v, ok := values[c.Name]
			if !ok {
				continue
			}
			if _, err = b.WriteRegister(c.Name, v); err != nil {
				return nil, &LoadError{Message: "initial value of " + strconv.Quote(c.Name), Cause: err}
			}
		}
	}
	return r, nil
}

// LoadRouter loads a layout file and builds its router.
func LoadRouter(path string) (*File, *register.Router, error) {
	f, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := f.Build()
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, nil, err
	}
	return f, r, nil
}
