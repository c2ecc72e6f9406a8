// Package procontest provides an in-memory Pro Controller for tests.
package procontest

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/proxi-pad/proxi/procon"
)

// Fake emulates the USB HID side of a Pro Controller. It answers the 0x80
// command family and subcommands, and serves SPI reads from SPI.
type Fake struct {
	mu sync.Mutex

	// SPI holds flash contents; unset addresses read as 0xff.
	SPI map[uint32]byte
	// StatusMisses is the number of USB status requests answered without 0x81.
	StatusMisses int
	// Silent lists subcommands that get no reply.
	Silent map[byte]bool

	written  [][]byte
	reports  chan []byte
	done     chan struct{}
	closed   bool
	readErr  error
	opens    int
	statuses int
}

// New returns a fake with factory calibration for both sticks.
func New() *Fake {
	f := &Fake{
		SPI:     map[uint32]byte{},
		Silent:  map[byte]bool{},
		reports: make(chan []byte, 4096),
		done:    make(chan struct{}),
	}
	f.PutStick(0x603d, FactoryLeft)
	f.PutStick(0x6046, FactoryRightSPI)
	f.PutDeadzone(0x6086, 0xae)
	f.PutDeadzone(0x6098, 0xae)
	return f
}

// Factory calibration used by New. The right block is stored in SPI order
// (center, min, max).
var (
	FactoryLeft     = [6]uint16{0x5a0, 0x5b0, 0x7f0, 0x800, 0x590, 0x580}
	FactoryRightSPI = [6]uint16{0x810, 0x7e0, 0x5c0, 0x5d0, 0x5e0, 0x5f0}
)

// PutStick stores six 12-bit values packed the way the controller does.
func (f *Fake) PutStick(addr uint32, v [6]uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < 3; i++ {
		a, b := v[i*2], v[i*2+1]
		f.SPI[addr+uint32(i*3)] = byte(a)
		f.SPI[addr+uint32(i*3)+1] = byte(a>>8)&0x0f | byte(b<<4)
		f.SPI[addr+uint32(i*3)+2] = byte(b >> 4)
	}
}

// PutDeadzone stores a 12-bit deadzone in a stick parameter block.
func (f *Fake) PutDeadzone(addr uint32, dz uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SPI[addr+3] = byte(dz)
	f.SPI[addr+4] = byte(dz>>8) & 0x0f
}

// Open returns the fake as a procon.OpenFunc, counting calls. A closed fake
// is reopened with read failures cleared.
func (f *Fake) Open() (procon.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.closed {
		f.closed = false
		f.readErr = nil
		f.done = make(chan struct{})
	}
	return f, nil
}

// Opens reports how often Open was called.
func (f *Fake) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Written returns a copy of every report written so far.
func (f *Fake) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

// Subcommands returns the ids of all subcommands written so far.
func (f *Fake) Subcommands() []byte {
	var out []byte
	for _, w := range f.Written() {
		if len(w) > 10 && w[0] == 0x01 {
			out = append(out, w[10])
		}
	}
	return out
}

// Feed queues an input report.
func (f *Fake) Feed(report []byte) {
	f.reports <- report
}

// FailReads makes every following read return err.
func (f *Fake) FailReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	f.written = append(f.written, append([]byte(nil), p...))
	reply := f.replyLocked(p)
	f.mu.Unlock()
	if reply != nil {
		f.reports <- reply
	}
	return len(p), nil
}

func (f *Fake) replyLocked(p []byte) []byte {
	if len(p) < 2 {
		return nil
	}
	switch p[0] {
	case 0x80:
		if p[1] == 0x01 {
			f.statuses++
			if f.statuses <= f.StatusMisses {
				return nil
			}
		}
		if p[1] == 0x05 {
			return nil
		}
		return []byte{0x81, p[1], 0x00}
	case 0x01:
		if len(p) < 11 || f.Silent[p[10]] {
			return nil
		}
		return f.subcommandReplyLocked(p[10], p[11:])
	}
	return nil
}

func (f *Fake) subcommandReplyLocked(sc byte, args []byte) []byte {
	r := make([]byte, 64)
	r[0] = 0x21
	r[2] = 0x8e
	r[13] = 0x80
	r[14] = sc
	if sc == 0x10 && len(args) >= 5 {
		r[13] = 0x90
		addr := binary.LittleEndian.Uint32(args[0:4])
		size := args[4]
		copy(r[15:20], args[0:5])
		for i := 0; i < int(size); i++ {
			v, ok := f.SPI[addr+uint32(i)]
			if !ok {
				v = 0xff
			}
			r[20+i] = v
		}
	}
	return r
}

func (f *Fake) Read(p []byte) (int, error) {
	return f.read(p, nil)
}

func (f *Fake) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	return f.read(p, t.C)
}

func (f *Fake) read(p []byte, timeout <-chan time.Time) (int, error) {
	f.mu.Lock()
	err, done := f.readErr, f.done
	closed := f.closed
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if closed {
		return 0, io.ErrClosedPipe
	}
	select {
	case r := <-f.reports:
		return copy(p, r), nil
	case <-done:
		return 0, io.ErrClosedPipe
	case <-timeout:
		return 0, procon.ErrTimeout
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

// StandardReport builds a 0x30 input report.
func StandardReport(buttons procon.Buttons, left, right procon.Stick) []byte {
	r := make([]byte, procon.ReportLen)
	r[0] = 0x30
	r[2] = 0x8e
	r[3] = byte(buttons)
	r[4] = byte(buttons >> 8)
	r[5] = byte(buttons >> 16)
	packStick(r[6:9], left)
	packStick(r[9:12], right)
	return r
}

func packStick(b []byte, s procon.Stick) {
	b[0] = byte(s.X)
	b[1] = byte(s.X>>8)&0x0f | byte(s.Y<<4)
	b[2] = byte(s.Y >> 4)
}
