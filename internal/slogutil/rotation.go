package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// LogFile is an append-only log that starts a fresh file once the next write
// would take it past limit bytes. The current file becomes path.1, path.1
// becomes path.2 and so on; files numbered above keep are removed.
// A limit of 0 disables rotation.
type LogFile struct {
	mu    sync.Mutex
	path  string
	limit int64
	keep  int
	f     *os.File
	size  int64
}

// OpenLogFile opens path for appending, creating its directory.
func OpenLogFile(path string, limit int64, keep int) (*LogFile, error) {
	lf := &LogFile{path: path, limit: limit, keep: keep}
	if err := lf.reopen(); err != nil {
		return nil, err
	}
	return lf, nil
}

func (lf *LogFile) reopen() error {
	if err := os.MkdirAll(filepath.Dir(lf.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	lf.f, lf.size = f, st.Size()
	return nil
}

// Write implements io.Writer. A single write larger than limit still lands
// whole in one file.
func (lf *LogFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		return 0, os.ErrClosed
	}
	if lf.limit > 0 && lf.size > 0 && lf.size+int64(len(p)) > lf.limit {
		// on a failed shift we keep appending to whatever is open
		if err := lf.rotate(); err != nil && lf.f == nil {
			return 0, err
		}
	}
	n, err := lf.f.Write(p)
	lf.size += int64(n)
	return n, err
}

// Close implements io.Closer.
func (lf *LogFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}

func (lf *LogFile) rotate() error {
	if err := lf.f.Close(); err != nil {
		return err
	}
	lf.f = nil

	if lf.keep <= 0 {
		_ = os.Remove(lf.path)
		return lf.reopen()
	}
	_ = os.Remove(lf.numbered(lf.keep))
	for i := lf.keep - 1; i >= 1; i-- {
		_ = os.Rename(lf.numbered(i), lf.numbered(i+1))
	}
	_ = os.Rename(lf.path, lf.numbered(1))
	return lf.reopen()
}

func (lf *LogFile) numbered(n int) string {
	return fmt.Sprintf("%s.%d", lf.path, n)
}

var sizeUnits = []struct {
	suffix string
	bytes  float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize converts "10MB", "512kb" or "2048" to bytes. Units are binary
// (KB = 1024). Empty, negative or malformed input yields 0.
func ParseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := 1.0
	for _, u := range sizeUnits {
		if rest, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = strings.TrimSpace(rest), u.bytes
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return int64(v * mult)
}

// NewRotatingFileLogger returns a line-format logger writing to path, rotated
// at maxSize with keep old files. An empty or invalid maxSize means no rotation.
func NewRotatingFileLogger(path string, level slog.Level, maxSize string, keep int) (*slog.Logger, io.Closer, error) {
	lf, err := OpenLogFile(path, ParseSize(maxSize), keep)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(lf, level), lf, nil
}
