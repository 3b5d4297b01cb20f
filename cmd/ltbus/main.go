// Command ltbus talks to LT-BUS devices as a master.
//
// Usage:
//
//	ltbus [flags] command [args]
//
// Commands:
//
//	ports                   list serial ports
//	read ADDR N             read N bytes starting at ADDR
//	write ADDR TYPE VALUE   write VALUE, encoded as TYPE, to ADDR
//	get NAME                read a register defined in the layout
//	set NAME VALUE          write a register defined in the layout
//	scan [MIN [MAX]]        list slaves answering a read of the identity window
//	ident                   print the identity window of the slave
//	dump FILE               print the frames of a capture file
//
// Examples:
//
//	ltbus -conn tcp:192.168.1.20 read 0xA000 2
//	ltbus -conn serial:/dev/ttyUSB0,b115200 -layout lt-re850.yaml get PR1
//	ltbus -conn tcp:192.168.1.20 write 0xD004 f32 12.34
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/knieriem/ltbus"
	"github.com/knieriem/ltbus/capture"
	"github.com/knieriem/ltbus/netconn"
	_ "github.com/knieriem/ltbus/netconn/serial"
	"github.com/knieriem/ltbus/netconn/tcp"
)

// Config holds the command line configuration.
type Config struct {
	Conn       string
	SlaveID    int
	Timeout    time.Duration
	Retries    int
	Layout     string
	Capture    string
	Trace      bool
	AllPorts   bool
	ErrorsOnly bool
	LogLevel   string
}

var config Config

func init() {
	flag.StringVar(&config.Conn, "conn", tcp.DefaultAddr, "Transport, e.g. tcp:127.0.0.1:6543 or serial:/dev/ttyUSB0,b115200")
	flag.IntVar(&config.SlaveID, "slave", 0, "Slave ID")
	flag.DurationVar(&config.Timeout, "timeout", time.Second, "Response timeout")
	flag.IntVar(&config.Retries, "retries", 0, "Number of retries on timeouts and invalid responses")
	flag.StringVar(&config.Layout, "layout", "", "Register layout file, needed by get and set")
	flag.StringVar(&config.Capture, "capture", "", "Append a CBOR frame capture to this file")
	flag.BoolVar(&config.Trace, "trace", false, "Print frames as they are sent and received")
	flag.BoolVar(&config.AllPorts, "a", false, "ports: list hidden interfaces too")
	flag.BoolVar(&config.ErrorsOnly, "errors", false, "dump: print erroneous frames only")
	flag.StringVar(&config.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	netconn.SetDefaultProto("tcp")

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: ltbus [flags] command [args]")
		fmt.Fprintln(os.Stderr, "commands: ports, read, write, get, set, scan, ident, dump")
		flag.PrintDefaults()
	}
}

type command struct {
	nArgs   int // minimum number of arguments
	maxArgs int
	bus     bool // needs a connection
	run     func(c *cmdContext, args []string) error
}

var commands = map[string]command{
	"ports": {0, 0, false, cmdPorts},
	"read":  {2, 2, true, cmdRead},
	"write": {3, 3, true, cmdWrite},
	"get":   {1, 1, true, cmdGet},
	"set":   {2, 2, true, cmdSet},
	"scan":  {0, 2, true, cmdScan},
	"ident": {0, 0, true, cmdIdent},
	"dump":  {1, 1, false, cmdDump},
}

type cmdContext struct {
	m    *ltbus.Master
	dev  *ltbus.Device
	opts []ltbus.ReqOption
}

func main() {
	flag.Parse()
	setupLogging(config.LogLevel)

	if err := validateConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "ltbus:", err)
		flag.Usage()
		os.Exit(2)
	}
	args := flag.Args()
	cmd := commands[args[0]]

	c := new(cmdContext)
	if cmd.bus {
		closeConn, err := c.open()
		if err != nil {
			fatal(err)
		}
		defer closeConn()
	}
	err := cmd.run(c, args[1:])
	if err != nil {
		fatal(err)
	}
}

func validateConfig() error {
	args := flag.Args()
	if len(args) == 0 {
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if n := len(args) - 1; n < cmd.nArgs || n > cmd.maxArgs {
		return fmt.Errorf("%s: wrong number of arguments", args[0])
	}
	if config.SlaveID < 0 || config.SlaveID > 255 {
		return fmt.Errorf("slave id must be 0-255, got %d", config.SlaveID)
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", config.Timeout)
	}
	return nil
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "ltbus:", err)
	os.Exit(1)
}

func (c *cmdContext) open() (closeConn func(), err error) {
	cf, err := netconn.ParseSpec(config.Conn)
	if err != nil {
		return
	}
	conn, err := cf.Dial()
	if err != nil {
		return
	}
	m := ltbus.NewMaster(conn, conn.Addr)
	m.ResponseTimeout = config.Timeout
	if config.Trace {
		m.Tracef = func(format string, a ...interface{}) {
			fmt.Fprintf(os.Stderr, format, a...)
		}
	}
	var fl *capture.FileLogger
	if config.Capture != "" {
		fl, err = capture.NewFileLogger(config.Capture)
		if err != nil {
			conn.Close()
			return
		}
		m.Capture = fl
	}
	if config.Retries > 0 {
		c.opts = append(c.opts,
			ltbus.RetryOnTimeout(config.Retries, config.Timeout/2),
			ltbus.RetryOnInvalidReply(config.Retries, 50*time.Millisecond))
	}
	c.m = m
	c.dev = ltbus.NewDevice(m, uint8(config.SlaveID))
	closeConn = func() {
		conn.Close()
		if fl != nil {
			fl.Close()
		}
		if s := m.RequestStats.Snapshot(); s.All != 0 {
			slog.Debug("requests", "all", s.All, "invalid", s.Invalid, "timeout", s.Timeout, "other", s.Other)
		}
	}
	return
}

func parseAddr(s string) (uint16, error) {
	u, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(u), nil
}

func cmdPorts(_ *cmdContext, _ []string) error {
	netconn.FprintInterfaces(os.Stdout, config.AllPorts)
	return nil
}
