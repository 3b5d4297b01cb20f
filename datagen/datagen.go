// Package datagen produces live values for the registers of an
// emulated device, so that a master polling it sees changing data.
package datagen

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/knieriem/ltbus/register"
)

type Error string

func (e Error) Error() string {
	return "datagen: " + string(e)
}

const ErrUnknownMode = Error("unknown mode")

// Mode selects how values are generated.
type Mode int

const (
	Random Mode = iota
	Sine
	Linear
	Const
)

var modeNames = []string{
	Random: "random",
	Sine:   "sine",
	Linear: "linear",
	Const:  "const",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "mode(?)"
}

func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if s == name {
			return Mode(m), nil
		}
	}
	return 0, ErrUnknownMode
}

// Values used in Const mode.
const (
	ConstInt   = 99
	ConstFloat = 24.6
)

// Range of floats generated in Random, Sine and Linear mode.
const FloatMax = 100.0

// DefaultPeriod is the number of steps of a Sine or Linear cycle.
const DefaultPeriod = 100

// A Store receives the generated values.
type Store interface {
	WriteRegister(name string, v interface{}) (interface{}, error)
}

// A Generator writes a new value into each of its registers
// whenever Next is called. Byte array registers are left alone.
type Generator struct {
	Mode   Mode
	Period int

	// Locker, if set, is held while values are written,
	// usually the same Locker a slave.Endpoint uses.
	Locker sync.Locker
	Logger *slog.Logger

	store Store
	regs  []register.Config
	rand  *rand.Rand
	clock int
}

// New returns a generator that updates the registers regs of s.
func New(s Store, mode Mode, regs ...register.Config) *Generator {
	g := &Generator{
		Mode:   mode,
		Period: DefaultPeriod,
		store:  s,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, c := range regs {
		if c.Type.Kind() == register.Bytes {
			continue
		}
		g.regs = append(g.regs, c)
	}
	return g
}

// Seed makes the sequence of random values reproducible.
func (g *Generator) Seed(seed int64) {
	g.rand = rand.New(rand.NewSource(seed))
}

// Select returns the configurations of the named registers
// of r. If no names are given, all registers are returned.
func Select(r *register.Router, names ...string) ([]register.Config, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	list := make([]register.Config, 0, len(names))
	for _, name := range names {
		e, ok := r.Lookup(name)
		if !ok {
			return nil, &register.UnknownRegisterError{Name: name}
		}
		list = append(list, e.Config)
	}
	return list, nil
}

// Registers returns the registers updated by g.
func (g *Generator) Registers() []register.Config {
	return g.regs
}

// Reset restarts Sine and Linear cycles.
func (g *Generator) Reset() {
	g.clock = 0
}

// Next computes a value for each register and stores it.
func (g *Generator) Next() error {
	if g.Locker != nil {
		g.Locker.Lock()
		defer g.Locker.Unlock()
	}
	for _, c := range g.regs {
		_, err := g.store.WriteRegister(c.Name, g.Value(c.Type))
		if err != nil {
			return err
		}
	}
	g.clock++
	return nil
}

// Value returns the value for a register of type t at the current
// step of the cycle.
func (g *Generator) Value(t register.Type) interface{} {
	if t.Kind().IsFloat() {
		return g.float()
	}
	return g.int(intMax(t))
}

// intMax returns 2^(bits-1)-1, which fits into signed
// and unsigned registers of size t.
func intMax(t register.Type) int64 {
	return int64(1)<<(8*t.Size()-1) - 1
}

func (g *Generator) phase() float64 {
	p := g.Period
	if p <= 0 {
		p = DefaultPeriod
	}
	return float64(g.clock%p) / float64(p)
}

func (g *Generator) float() float64 {
	switch g.Mode {
	case Const:
		return ConstFloat
	case Sine:
		return FloatMax / 2 * (1 + math.Sin(2*math.Pi*g.phase()))
	case Linear:
		return FloatMax * g.phase()
	}
	return g.rand.Float64() * FloatMax
}

func (g *Generator) int(limit int64) int64 {
	var f float64
	switch g.Mode {
	case Const:
		return ConstInt
	case Sine:
		f = float64(limit) / 2 * (1 + math.Sin(2*math.Pi*g.phase()))
	case Linear:
		f = float64(limit) * g.phase()
	default:
		return g.rand.Int63n(limit)
	}
	if f >= float64(limit) {
		return limit
	}
	return int64(f)
}

// Run calls Next each interval until ctx is done.
func (g *Generator) Run(ctx context.Context, interval time.Duration) error {
	log := g.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("data generator started", "mode", g.Mode.String(), "registers", len(g.regs), "interval", interval)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("data generator stopped", "steps", g.clock)
			return ctx.Err()
		case <-t.C:
			err := g.Next()
			if err != nil {
				log.Error("data generator", "error", err)
				return err
			}
		}
	}
}
