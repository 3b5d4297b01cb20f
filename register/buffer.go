package register

import (
	"fmt"
	"sort"
)

// WindowSize is the size of the address window owned by a buffer.
const WindowSize = 0x1000

const windowMask = 0xF000

// BaseOf returns the base address of the window containing addr.
func BaseOf(addr uint16) uint16 {
	return addr & windowMask
}

// Buffer is a block of register storage located at a base address.
// Its layout is fixed when it is created. A Buffer is not safe for
// concurrent use.
type Buffer struct {
	base  uint16
	regs  map[string]Config
	order []string
	data  []byte
}

// NewBuffer creates a buffer holding the registers regs. It fails
// with a *LayoutError if a name is used twice, if two registers
// overlap, or if the layout does not fit into one address window.
// The storage spans up to the end of the last register and is
// initially zero.
func NewBuffer(base uint16, regs ...Config) (*Buffer, error) {
	b := &Buffer{
		base:  base,
		regs:  make(map[string]Config, len(regs)),
		order: make([]string, 0, len(regs)),
	}
	span := 0
	for _, r := range regs {
		switch {
		case r.Name == "":
			return nil, &LayoutError{Base: base, Reason: fmt.Sprintf("register at offset 0x%03X has no name", r.Offset)}
		case !r.Type.Valid():
			return nil, &LayoutError{Base: base, Name: r.Name, Reason: "invalid type"}
		}
		if _, dup := b.regs[r.Name]; dup {
			return nil, &LayoutError{Base: base, Name: r.Name, Reason: "name used more than once"}
		}
		b.regs[r.Name] = r
		b.order = append(b.order, r.Name)
		if end := r.End(); end > span {
			span = end
		}
	}
	if span > WindowSize {
		return nil, &LayoutError{Base: base, Reason: fmt.Sprintf("layout spans %d bytes, exceeding the window of %d bytes", span, WindowSize)}
	}

	sorted := make([]Config, len(regs))
	copy(sorted, regs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})
	for i := 1; i < len(sorted); i++ {
		prev, r := sorted[i-1], sorted[i]
		if prev.overlaps(r) {
			return nil, &LayoutError{
				Base:   base,
				Name:   r.Name,
				Reason: fmt.Sprintf("[0x%03X, 0x%03X) overlaps %s [0x%03X, 0x%03X)", r.Offset, r.End(), prev.Name, prev.Offset, prev.End()),
			}
		}
	}
	b.data = make([]byte, span)
	return b, nil
}

// Base returns the base address of the buffer.
func (b *Buffer) Base() uint16 {
	return b.base
}

// Len returns the size of the storage in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Registers returns the register configurations in declaration order.
func (b *Buffer) Registers() []Config {
	list := make([]Config, len(b.order))
	for i, name := range b.order {
		list[i] = b.regs[name]
	}
	return list
}

// Register returns the configuration of the named register.
func (b *Buffer) Register(name string) (c Config, ok bool) {
	c, ok = b.regs[name]
	return
}

func (b *Buffer) lookup(name string) (Config, error) {
	c, ok := b.regs[name]
	if !ok {
		return c, &UnknownRegisterError{Name: name}
	}
	return c, nil
}

func (b *Buffer) ReadRegister(name string) (interface{}, error) {
	c, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return c.Type.Decode(b.data[c.Offset:c.End()])
}

// WriteRegister stores v into the named register. It returns
// the value read back from storage, which differs from v if v
// got truncated while being encoded.
func (b *Buffer) WriteRegister(name string, v interface{}) (interface{}, error) {
	c, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	dest := b.data[c.Offset:c.End()]
	err = c.Type.Put(dest, v)
	if err != nil {
		return nil, err
	}
	return c.Type.Decode(dest)
}

func (b *Buffer) region(addr uint16, size int) (offset int, err error) {
	offset = int(addr) - int(b.base)
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		err = &OutOfBoundsError{Base: b.base, Addr: addr, Size: size, Len: len(b.data)}
	}
	return
}

// ReadRegion returns a copy of size bytes starting at the absolute
// address addr. The region does not need to be aligned to register
// boundaries.
func (b *Buffer) ReadRegion(addr uint16, size int) ([]byte, error) {
	off, err := b.region(addr, size)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	copy(data, b.data[off:])
	return data, nil
}

// WriteRegion stores data at the absolute address addr.
func (b *Buffer) WriteRegion(addr uint16, data []byte) error {
	off, err := b.region(addr, len(data))
	if err != nil {
		return err
	}
	copy(b.data[off:], data)
	return nil
}

// RegisterAddress returns the absolute address of the named
// register, formatted as 0xHHHH.
func (b *Buffer) RegisterAddress(name string) (string, error) {
	c, err := b.lookup(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%04X", uint32(b.base)+uint32(c.Offset)), nil
}
