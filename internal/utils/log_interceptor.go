package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

const maxPendingLine = 1024 * 1024

// LogInterceptor prefixes every complete line written through it with a
// sequence number and a timestamp before passing it on to target. Partial
// lines are held until their newline arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending bytes.Buffer
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{
		target: target,
		now:    time.Now,
	}
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var out bytes.Buffer
	out.WriteString(slog.Uint64("line", i.seq).String())
	out.WriteByte(' ')
	out.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	out.WriteByte(' ')
	out.Write(bytes.TrimRight(line, "\r"))
	out.WriteByte('\n')
	_, err := i.target.Write(out.Bytes())
	return err
}

// Write implements io.Writer. It always reports len(p) on success, the
// prefixes are not counted.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		data := i.pending.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		i.pending.Next(idx + 1)
		if err := i.writeLine(line); err != nil {
			return 0, err
		}
	}

	// a runaway line without newline is flushed as is
	if i.pending.Len() > maxPendingLine {
		line := append([]byte(nil), i.pending.Bytes()...)
		i.pending.Reset()
		if err := i.writeLine(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), i.pending.Bytes()...)
	i.pending.Reset()
	return i.writeLine(line)
}
