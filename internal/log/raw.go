package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger records raw HID traffic. Direction is "in" or "out".
type RawLogger interface {
	Log(dir string, data []byte)
}

// NewRaw returns a RawLogger writing hex dumps to w. A nil writer disables
// raw logging.
func NewRaw(w io.Writer) RawLogger {
	if w == nil {
		return nopRaw{}
	}
	return &rawLogger{w: w, now: time.Now}
}

type nopRaw struct{}

func (nopRaw) Log(string, []byte) {}

type rawLogger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func (l *rawLogger) Log(dir string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s %-3s [%2d] % x\n", l.now().Format("15:04:05.000000"), dir, len(data), data)
}
