package netconn

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/knieriem/io/stream"
)

// LogOption selects which operations a logged connection reports.
type LogOption uint8

const (
	LogNone LogOption = 0
	LogRead LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLogged wraps rw, logging the bytes passing through it
// at the given level. Errors are logged at error level, except
// io.EOF. Use stream.InheritCloser to keep the result closeable.
func NewLogged(rw io.ReadWriter, name string, logger *slog.Logger, level slog.Level, opts LogOption) io.ReadWriter {
	return &logged{
		inner:  rw,
		name:   name,
		logger: logger,
		level:  level,
		opts:   opts,
	}
}

type logged struct {
	inner  io.ReadWriter
	name   string
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
}

func (l *logged) Read(b []byte) (int, error) {
	n, err := l.inner.Read(b)
	if l.opts&LogRead != 0 {
		if n > 0 {
			l.logger.Log(context.Background(), l.level, "netconn read",
				"conn", l.name,
				"n", n,
				"data", hexString(b[:n]),
			)
		}
		if err != nil && err != io.EOF {
			l.logger.Log(context.Background(), slog.LevelError, "netconn read error",
				"conn", l.name,
				"error", err,
			)
		}
	}
	return n, err
}

func (l *logged) Write(b []byte) (int, error) {
	n, err := l.inner.Write(b)
	if l.opts&LogWrite != 0 {
		l.logger.Log(context.Background(), l.level, "netconn write",
			"conn", l.name,
			"n", n,
			"data", hexString(b[:n]),
		)
		if err != nil {
			l.logger.Log(context.Background(), slog.LevelError, "netconn write error",
				"conn", l.name,
				"error", err,
			)
		}
	}
	return n, err
}

// LogWrapper returns a function for use with a stream.Wrapper,
// that logs the transport of each connection.
func LogWrapper(logger *slog.Logger, level slog.Level, opts LogOption) stream.WrapFunc {
	return func(rw io.ReadWriter, connID string) io.ReadWriter {
		return NewLogged(rw, connID, logger, level, opts)
	}
}

type hexString []byte

func (h hexString) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("% x", []byte(h)))
}
