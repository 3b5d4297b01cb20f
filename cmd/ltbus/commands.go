package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/knieriem/ltbus"
	"github.com/knieriem/ltbus/capture"
	"github.com/knieriem/ltbus/debug"
	"github.com/knieriem/ltbus/ident"
	"github.com/knieriem/ltbus/layout"
	"github.com/knieriem/ltbus/register"
)

func cmdRead(c *cmdContext, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid length %q", args[1])
	}
	data, err := c.dev.ReadRegion(addr, int(n), c.opts...)
	if err != nil {
		return err
	}
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Printf("%04X  % x\n", int(addr)+i, data[i:end])
	}
	return nil
}

func cmdWrite(c *cmdContext, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	t, err := register.ParseType(args[1], 0)
	if err != nil {
		return err
	}
	return writeValue(c, register.Reg(args[0], addr, t), args[2])
}

func writeValue(c *cmdContext, cfg register.Config, s string) error {
	v, err := register.ParseValue(cfg.Type, s)
	if err != nil {
		return fmt.Errorf("invalid %v value %q: %w", cfg.Type, s, err)
	}
	return c.dev.WriteRegister(cfg, v, c.opts...)
}

// lookup returns the configuration of the named register,
// with the absolute address as offset.
func lookup(name string) (register.Config, error) {
	if config.Layout == "" {
		return register.Config{}, errors.New("a layout file is needed to resolve register names")
	}
	_, r, err := layout.LoadRouter(config.Layout)
	if err != nil {
		return register.Config{}, err
	}
	e, ok := r.Lookup(name)
	if !ok {
		return register.Config{}, &register.UnknownRegisterError{Name: name}
	}
	return e.Config, nil
}

func cmdGet(c *cmdContext, args []string) error {
	cfg, err := lookup(args[0])
	if err != nil {
		return err
	}
	v, err := c.dev.ReadRegister(cfg, c.opts...)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t0x%04X\t%v\t%s\n", cfg.Name, cfg.Offset, cfg.Type, cfg.Type.Format(v))
	return nil
}

func cmdSet(c *cmdContext, args []string) error {
	cfg, err := lookup(args[0])
	if err != nil {
		return err
	}
	return writeValue(c, cfg, args[1])
}

func cmdScan(c *cmdContext, args []string) error {
	lim := [2]uint64{0, 255}
	for i, arg := range args {
		u, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid slave id %q", arg)
		}
		lim[i] = u
	}
	if len(args) == 1 {
		lim[1] = lim[0]
	}
	nFound := 0
	err := ltbus.ScanDevices(c.m, uint8(lim[0]), uint8(lim[1]), func(id uint8, d *ltbus.Device) error {
		info, err := ident.NewReader(d).Read(c.opts...)
		if err != nil {
			return err
		}
		nFound++
		fmt.Printf("%3d\tdevice_id=0x%04X\tstatus=0x%04X\n", id, info.DeviceID, info.Status)
		return nil
	})
	if err != nil {
		return err
	}
	if nFound == 0 {
		return errors.New("no devices found")
	}
	return nil
}

func cmdIdent(c *cmdContext, _ []string) error {
	info, err := ident.NewReader(c.dev).Read(c.opts...)
	if err != nil {
		return err
	}
	fmt.Printf("device_id\t0x%04X\n", info.DeviceID)
	fmt.Printf("device_status\t0x%04X\n", info.Status)
	fmt.Printf("device_config\t0x%04X\n", info.Config)
	if info.Message != "" {
		fmt.Printf("message\t%q\n", info.Message)
	}
	return nil
}

type eventError string

func (e eventError) Error() string { return string(e) }

func cmdDump(_ *cmdContext, args []string) error {
	r, err := capture.Open(args[0], capture.Filter{ErrorsOnly: config.ErrorsOnly})
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		e, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var evErr error
		if e.Error != "" {
			evErr = eventError(e.Error)
		}
		peer := e.Peer
		if peer == "" {
			peer = e.Role.String()
		}
		line := debug.FormatFrame(e.Direction.Arrow(), e.Frame, evErr, peer)
		if e.Truncated {
			line += " (truncated, " + strconv.Itoa(e.Size) + " bytes)"
		}
		fmt.Fprintf(os.Stdout, "%s %s %s\n", e.Timestamp.Format("15:04:05.000"), shortID(e.ConnectionID), line)
	}
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i != -1 {
		return id[:i]
	}
	return id
}
