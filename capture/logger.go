package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Logger receives captured events. Implementations must be
// safe for concurrent use.
type Logger interface {
	Log(Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// FileLogger appends CBOR encoded events to a file.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewFileLogger opens path for appending, creating it if necessary.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

func (l *FileLogger) Log(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	_ = l.encoder.Encode(e)
}

// Close closes the file. Events logged afterwards are dropped.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

// SlogAdapter writes events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(e Event) {
	attrs := []slog.Attr{
		slog.String("conn", e.ConnectionID),
		slog.String("direction", e.Direction.String()),
		slog.String("role", e.Role.String()),
		slog.Int("slave", int(e.SlaveID)),
		slog.String("fn", fmt.Sprintf("0x%02X", e.Function)),
		slog.String("addr", fmt.Sprintf("0x%04X", e.Address)),
		slog.Int("size", e.Size),
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "frame", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)

// MultiLogger forwards events to several loggers.
type MultiLogger []Logger

func (m MultiLogger) Log(e Event) {
	for _, l := range m {
		l.Log(e)
	}
}
