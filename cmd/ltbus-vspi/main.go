// Command ltbus-vspi emulates an LT-BUS device.
//
// The device's registers are defined by a layout file; without
// one, a minimal device with the identity window and a few data
// registers is emulated. The emulator either dials the master,
// reconnecting after the transport was lost, or listens for a
// master to connect.
//
// Usage:
//
//	ltbus-vspi [flags]
//
// Flags:
//
//	-layout string     Register layout file (YAML)
//	-conn string       Transport to dial, e.g. tcp:127.0.0.1:6543 or serial:/dev/ttyUSB0,b115200
//	-listen string     TCP address to listen on instead of dialing
//	-slave int         Slave ID (default taken from the layout, or 0)
//	-simulate string   Generate live data: random, sine, linear, const
//	-interval duration Data generation interval (default 1s)
//	-capture string    Append a CBOR frame capture to this file
//	-message string    Text stored into the message buffer
//	-trace             Log all bytes passing the transport
//	-corrupt           Damage frames now and then, to test a master's error handling
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Emulate an LT-RE850 dialing the desktop application
//	ltbus-vspi -layout lt-re850.yaml -conn tcp:127.0.0.1:6543
//
//	# Wait for a master, serving changing values
//	ltbus-vspi -listen :6543 -simulate sine -interval 200ms
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/knieriem/io/corrupt"
	"github.com/knieriem/io/stream"

	"github.com/knieriem/ltbus/capture"
	"github.com/knieriem/ltbus/datagen"
	"github.com/knieriem/ltbus/ident"
	"github.com/knieriem/ltbus/layout"
	"github.com/knieriem/ltbus/netconn"
	_ "github.com/knieriem/ltbus/netconn/serial"
	"github.com/knieriem/ltbus/netconn/tcp"
	"github.com/knieriem/ltbus/register"
	"github.com/knieriem/ltbus/slave"
)

// Config holds the emulator configuration.
type Config struct {
	Layout   string
	Conn     string
	Listen   string
	SlaveID  int
	Simulate string
	Interval time.Duration
	Capture  string
	Message  string
	Trace    bool
	Corrupt  bool
	LogLevel string

	// Delay before dialing again after the transport was lost.
	ReconnectDelay time.Duration
}

var config Config

func init() {
	flag.StringVar(&config.Layout, "layout", "", "Register layout file (YAML)")
	flag.StringVar(&config.Conn, "conn", "", "Transport to dial, e.g. tcp:127.0.0.1:6543")
	flag.StringVar(&config.Listen, "listen", "", "TCP address to listen on instead of dialing")
	flag.IntVar(&config.SlaveID, "slave", 0, "Slave ID (default taken from the layout)")
	flag.StringVar(&config.Simulate, "simulate", "", "Generate live data: random, sine, linear, const")
	flag.DurationVar(&config.Interval, "interval", time.Second, "Data generation interval")
	flag.StringVar(&config.Capture, "capture", "", "Append a CBOR frame capture to this file")
	flag.StringVar(&config.Message, "message", "", "Text stored into the message buffer")
	flag.BoolVar(&config.Trace, "trace", false, "Log all bytes passing the transport")
	flag.BoolVar(&config.Corrupt, "corrupt", false, "Damage frames now and then, to test a master's error handling")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.DurationVar(&config.ReconnectDelay, "reconnect-delay", 2*time.Second, "Delay between connection attempts")

	netconn.SetDefaultProto("tcp")
}

func main() {
	flag.Parse()
	setupLogging(config.LogLevel)

	if err := validateConfig(); err != nil {
		fatal("invalid configuration", err)
	}

	dev, err := loadDevice()
	if err != nil {
		fatal("cannot load layout", err)
	}
	slog.Info("LT-BUS device emulator", "device", dev.name, "slave", dev.slaveID)

	e := slave.New(dev.slaveID, dev.router)
	var mu sync.Mutex
	e.Locker = &mu
	if w := connWrapper(); w != nil {
		e.ConnWrapper.Set(w)
	}

	if config.Capture != "" {
		fl, err := capture.NewFileLogger(config.Capture)
		if err != nil {
			fatal("cannot open capture file", err)
		}
		defer fl.Close()
		e.Capture = fl
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.Simulate != "" {
		mode, _ := datagen.ParseMode(config.Simulate)
		g := datagen.New(dev.router, mode, dataRegisters(dev.router)...)
		g.Locker = &mu
		go g.Run(ctx, config.Interval)
	}

	if config.Listen != "" {
		err = listen(ctx, e)
	} else {
		err = dial(ctx, e, dev.conn)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal("emulator failed", err)
	}
	slog.Info("emulator stopped", "requests", e.Stats.Snapshot().All)
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func validateConfig() error {
	if config.Conn != "" && config.Listen != "" {
		return errors.New("-conn and -listen are mutually exclusive")
	}
	if config.SlaveID < 0 || config.SlaveID > 255 {
		return fmt.Errorf("slave id must be 0-255, got %d", config.SlaveID)
	}
	if config.Simulate != "" {
		if _, err := datagen.ParseMode(config.Simulate); err != nil {
			return fmt.Errorf("%w: %q", err, config.Simulate)
		}
		if config.Interval <= 0 {
			return fmt.Errorf("interval must be positive, got %v", config.Interval)
		}
	}
	return nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

type device struct {
	name    string
	slaveID uint8
	router  *register.Router
	conn    *netconn.Conf
}

func loadDevice() (*device, error) {
	dev := new(device)
	if config.Layout != "" {
		f, r, err := layout.LoadRouter(config.Layout)
		if err != nil {
			return nil, err
		}
		dev.name = f.Device
		dev.slaveID = f.SlaveID
		dev.router = r
		dev.conn = f.Conn
	} else {
		r, err := defaultRouter()
		if err != nil {
			return nil, err
		}
		dev.name = "generic"
		dev.router = r
	}
	if flagSet("slave") {
		dev.slaveID = uint8(config.SlaveID)
	}
	if config.Conn != "" {
		cf, err := netconn.ParseSpec(config.Conn)
		if err != nil {
			return nil, err
		}
		dev.conn = cf
	}
	if dev.conn == nil {
		dev.conn = &netconn.Conf{Proto: "tcp", Addr: tcp.DefaultAddr}
	}
	if config.Message != "" {
		if err := ident.SetMessage(dev.router, config.Message); err != nil {
			return nil, err
		}
	}
	return dev, nil
}

func flagSet(name string) (set bool) {
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return
}

func defaultRouter() (*register.Router, error) {
	cfg, err := ident.NewBuffer(0x1000)
	if err != nil {
		return nil, err
	}
	data, err := register.NewBuffer(0xD000,
		register.Reg("FLOW", 0x000, register.F32),
		register.Reg("PR1", 0x004, register.F32),
		register.Reg("PR2", 0x008, register.F32),
	)
	if err != nil {
		return nil, err
	}
	return register.NewRouter(cfg, data)
}

// dataRegisters returns the registers outside of the identity window's buffer.
func dataRegisters(r *register.Router) (list []register.Config) {
	for _, b := range r.Buffers() {
		if b.Base() == ident.Base {
			continue
		}
		list = append(list, b.Registers()...)
	}
	return
}

func listen(ctx context.Context, e *slave.Endpoint) error {
	l, err := net.Listen("tcp", config.Listen)
	if err != nil {
		return err
	}
	slog.Info("listening", "addr", l.Addr().String())
	go func() {
		<-ctx.Done()
		l.Close()
		e.Disconnect()
	}()
	srv := &slave.Server{
		Endpoint: e,
		ConnState: func(c net.Conn, s slave.ConnState) {
			slog.Debug("connection state", "peer", c.RemoteAddr().String(), "state", s.String())
		},
	}
	err = srv.Serve(l)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func dial(ctx context.Context, e *slave.Endpoint, cf *netconn.Conf) error {
	go func() {
		<-ctx.Done()
		e.Disconnect()
	}()
	for {
		err := e.Connect(cf)
		if err == nil {
			err = e.Serve()
			e.Disconnect()
			if ctx.Err() == nil {
				slog.Warn("transport lost", "error", err)
			}
		} else {
			slog.Warn("cannot connect", "conn", cf.MakeAddr(cf.InterfaceName(), false), "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.ReconnectDelay):
		}
	}
}

// connWrapper returns the function wrapping each transport
// the endpoint attaches, or nil.
func connWrapper() stream.WrapFunc {
	var list []stream.WrapFunc
	if config.Corrupt {
		list = append(list, corrupt.Wrap)
	}
	if config.Trace {
		list = append(list, netconn.LogWrapper(slog.Default(), slog.LevelDebug, netconn.LogAll))
	}
	if len(list) == 0 {
		return nil
	}
	return func(rw io.ReadWriter, connID string) io.ReadWriter {
		for _, wrap := range list {
			rw = wrap(rw, connID)
		}
		return rw
	}
}
