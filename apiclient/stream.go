package apiclient

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/proxi-pad/proxi/apitypes"
)

var errStreamClosed = errors.New("stream closed")

// DeviceStream is a bidirectional binary connection to one virtual device.
// Writes carry device input frames, reads return device output (e.g. rumble).
type DeviceStream struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// OpenStream connects to the stream endpoint of an existing device.
func (c *Client) OpenStream(ctx context.Context, busID uint32, devID string) (*DeviceStream, error) {
	if c.transport.respond != nil {
		return nil, errors.New("device streams not supported with mock transport")
	}
	conn, err := c.transport.dial(ctx)
	if err != nil {
		return nil, err
	}
	if c.transport.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.transport.cfg.WriteTimeout))
	}
	if _, err := fmt.Fprintf(conn, "bus/%d/%s\n", busID, devID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("stream activate: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return &DeviceStream{conn: conn}, nil
}

// AddDeviceAndConnect adds a device of devType to busID and opens its stream.
// The add response is returned even when the stream cannot be opened so the
// caller can remove the device.
func (c *Client) AddDeviceAndConnect(ctx context.Context, busID uint32, devType string) (*DeviceStream, *apitypes.Device, error) {
	dev, err := c.DeviceAdd(ctx, busID, devType)
	if err != nil {
		return nil, nil, err
	}
	if dev.DevId == "" {
		return nil, dev, errors.New("add response without devId")
	}
	stream, err := c.OpenStream(ctx, busID, dev.DevId)
	if err != nil {
		return nil, dev, err
	}
	return stream, dev, nil
}

func (s *DeviceStream) get() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return nil, errStreamClosed
	}
	return s.conn, nil
}

func (s *DeviceStream) Read(p []byte) (int, error) {
	conn, err := s.get()
	if err != nil {
		return 0, err
	}
	return conn.Read(p)
}

func (s *DeviceStream) Write(p []byte) (int, error) {
	conn, err := s.get()
	if err != nil {
		return 0, err
	}
	return conn.Write(p)
}

// WriteBinary marshals m and writes it as one frame.
func (s *DeviceStream) WriteBinary(m encoding.BinaryMarshaler) error {
	conn, err := s.get()
	if err != nil {
		return err
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = conn.Write(b)
	return err
}

// ReadFrames reads fixed-size frames until the stream fails or ctx is done.
// The returned channel is closed when reading stops; the terminal error is
// sent on errc.
func (s *DeviceStream) ReadFrames(ctx context.Context, size int) (<-chan []byte, <-chan error) {
	out := make(chan []byte, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, size)
			if _, err := io.ReadFull(s, buf); err != nil {
				if ctx.Err() != nil {
					err = nil
				}
				errc <- err
				return
			}
			select {
			case out <- buf:
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
	}()
	return out, errc
}

func (s *DeviceStream) SetDeadline(t time.Time) error {
	conn, err := s.get()
	if err != nil {
		return err
	}
	return conn.SetDeadline(t)
}

func (s *DeviceStream) SetWriteDeadline(t time.Time) error {
	conn, err := s.get()
	if err != nil {
		return err
	}
	return conn.SetWriteDeadline(t)
}

// Close closes the stream. It is safe to call more than once.
func (s *DeviceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
