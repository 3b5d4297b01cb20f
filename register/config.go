package register

// Config describes one named register, located at a byte offset
// within the buffer that owns it. Offsets are assigned by the
// caller; registers are not packed automatically.
type Config struct {
	Name   string
	Offset uint16
	Type   Type
}

// Reg returns a register configuration.
func Reg(name string, offset uint16, t Type) Config {
	return Config{Name: name, Offset: offset, Type: t}
}

// Size returns the size of the register in bytes.
func (c Config) Size() int {
	return c.Type.Size()
}

// End returns the offset of the first byte following the register.
func (c Config) End() int {
	return int(c.Offset) + c.Type.Size()
}

// Rebase returns a copy of c with base added to its offset.
func (c Config) Rebase(base uint16) Config {
	c.Offset += base
	return c
}

func (c Config) overlaps(c2 Config) bool {
	return int(c.Offset) < c2.End() && int(c2.Offset) < c.End()
}
