package aprs

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// FrameLog appends every sent frame to a file, each line prefixed with
// an strftime-formatted timestamp. Useful for auditing what actually
// went out to the IS side.
type FrameLog struct {
	mu     sync.Mutex
	f      *os.File
	format *strftime.Strftime
}

// NewFrameLog opens or creates the log file. The format uses strftime
// conversions, e.g. "%Y-%m-%d %H:%M:%S".
func NewFrameLog(path, format string) (*FrameLog, error) {
	p, err := strftime.New(format)
	if err != nil {
		return nil, fmt.Errorf("frame log format: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("frame log: %w", err)
	}
	return &FrameLog{f: f, format: p}, nil
}

// Append writes one frame with its timestamp prefix. Write errors are
// swallowed; a full disk must not take the uplink down.
func (l *FrameLog) Append(frame string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stamp := l.format.FormatString(time.Now())
	fmt.Fprintf(l.f, "[%s] %s", stamp, strings.TrimSuffix(frame, "\n")+"\n")
}

// Close flushes and closes the underlying file.
func (l *FrameLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
