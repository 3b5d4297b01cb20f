package register

import (
	"fmt"
	"sort"
)

// Entry is an element of the router-wide register index.
// Its Config carries the absolute register address as offset.
type Entry struct {
	Base uint16
	Config
}

// Router owns a set of buffers, each occupying one 4096-byte
// address window, and routes absolute register addresses to them.
// A Router is not safe for concurrent use.
type Router struct {
	buffers map[uint16]*Buffer
	index   map[string]Entry
}

// NewRouter returns a router serving the buffers bufs.
func NewRouter(bufs ...*Buffer) (*Router, error) {
	r := &Router{
		buffers: make(map[uint16]*Buffer, len(bufs)),
		index:   make(map[string]Entry),
	}
	for _, b := range bufs {
		err := r.Add(b)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a buffer. Its base address must be a multiple
// of the window size and must not be in use yet. Register names
// must be unique across all buffers of a router.
func (r *Router) Add(b *Buffer) error {
	base := b.Base()
	if base%WindowSize != 0 {
		return &LayoutError{Base: base, Reason: "base address is not a multiple of 0x1000"}
	}
	if _, ok := r.buffers[base]; ok {
		return &LayoutError{Base: base, Reason: "base address used more than once"}
	}
	for _, c := range b.Registers() {
		if e, ok := r.index[c.Name]; ok {
			return &LayoutError{Base: base, Name: c.Name, Reason: fmt.Sprintf("name already used in buffer 0x%04X", e.Base)}
		}
	}
	r.buffers[base] = b
	r.reindex()
	return nil
}

// Remove unregisters the buffer at base.
func (r *Router) Remove(base uint16) (b *Buffer, ok bool) {
	b, ok = r.buffers[base]
	if ok {
		delete(r.buffers, base)
		r.reindex()
	}
	return
}

func (r *Router) reindex() {
	r.index = make(map[string]Entry, len(r.index))
	for base, b := range r.buffers {
		for _, c := range b.Registers() {
			r.index[c.Name] = Entry{Base: base, Config: c.Rebase(base)}
		}
	}
}

// Buffers returns the buffers sorted by base address.
func (r *Router) Buffers() []*Buffer {
	list := make([]*Buffer, 0, len(r.buffers))
	for _, b := range r.buffers {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Base() < list[j].Base()
	})
	return list
}

// Resolve returns the buffer owning the window of addr.
func (r *Router) Resolve(addr uint16) (*Buffer, error) {
	b, ok := r.buffers[BaseOf(addr)]
	if !ok {
		return nil, &UnknownBufferError{Addr: addr}
	}
	return b, nil
}

func (r *Router) HandleRead(addr uint16, size int) ([]byte, error) {
	b, err := r.Resolve(addr)
	if err != nil {
		return nil, err
	}
	return b.ReadRegion(addr, size)
}

func (r *Router) HandleWrite(addr uint16, data []byte) error {
	b, err := r.Resolve(addr)
	if err != nil {
		return err
	}
	return b.WriteRegion(addr, data)
}

// Lookup returns the index entry of a register, searching all buffers.
func (r *Router) Lookup(name string) (e Entry, ok bool) {
	e, ok = r.index[name]
	return
}

// Names returns all register names, sorted by absolute address.
func (r *Router) Names() []string {
	list := make([]Entry, 0, len(r.index))
	for _, e := range r.index {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Offset < list[j].Offset
	})
	names := make([]string, len(list))
	for i, e := range list {
		names[i] = e.Name
	}
	return names
}

func (r *Router) buffer(name string) (*Buffer, error) {
	e, ok := r.index[name]
	if !ok {
		return nil, &UnknownRegisterError{Name: name}
	}
	return r.buffers[e.Base], nil
}

func (r *Router) ReadRegister(name string) (interface{}, error) {
	b, err := r.buffer(name)
	if err != nil {
		return nil, err
	}
	return b.ReadRegister(name)
}

// WriteRegister works like Buffer.WriteRegister, for a register
// of any buffer.
func (r *Router) WriteRegister(name string, v interface{}) (interface{}, error) {
	b, err := r.buffer(name)
	if err != nil {
		return nil, err
	}
	return b.WriteRegister(name, v)
}
