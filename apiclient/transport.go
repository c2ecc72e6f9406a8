package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Config holds the transport timeouts.
type Config struct {
	DialTimeout  time.Duration `help:"API dial timeout" default:"3s" env:"PROXI_VIIPER_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `help:"API read timeout" default:"5s" env:"PROXI_VIIPER_READ_TIMEOUT"`
	WriteTimeout time.Duration `help:"API write timeout" default:"5s" env:"PROXI_VIIPER_WRITE_TIMEOUT"`
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Responder answers requests in place of a server.
type Responder func(path string, payload any, pathParams map[string]string) (string, error)

// Transport implements the line protocol shared by the VIIPER and PROXI APIs.
// A request is "<path> <payload>\n" with URL-escaped path params; the reply is
// a single line. Every request uses its own connection.
type Transport struct {
	addr    string
	cfg     Config
	respond Responder
}

// NewTransport returns a transport with default timeouts.
func NewTransport(addr string) *Transport { return NewTransportWithConfig(addr, nil) }

// NewTransportWithConfig returns a transport; a nil cfg means default timeouts.
func NewTransportWithConfig(addr string, cfg *Config) *Transport {
	t := &Transport{addr: addr, cfg: defaultConfig()}
	if cfg != nil {
		t.cfg = *cfg
	}
	return t
}

// NewMockTransport returns a transport that hands every request to respond
// instead of dialing.
func NewMockTransport(respond Responder) *Transport {
	return &Transport{addr: "mock", cfg: defaultConfig(), respond: respond}
}

// Addr returns the server address.
func (t *Transport) Addr() string { return t.addr }

// Do is DoCtx with a background context.
func (t *Transport) Do(path string, payload any, pathParams map[string]string) (string, error) {
	return t.DoCtx(context.Background(), path, payload, pathParams)
}

// DoCtx sends one request and returns the reply line without its newline.
//
// The payload is appended after a space: []byte and string as-is, nil not
// at all, anything else JSON encoded.
func (t *Transport) DoCtx(ctx context.Context, path string, payload any, pathParams map[string]string) (string, error) {
	if t.respond != nil {
		return t.respond(path, payload, pathParams)
	}
	line, err := requestLine(path, payload, pathParams)
	if err != nil {
		return "", err
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return t.exchange(conn, line)
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	d := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (t *Transport) exchange(conn net.Conn, line []byte) (string, error) {
	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if _, err := conn.Write(line); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	if t.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if reply == "" && err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.TrimSuffix(reply, "\n"), nil
}

// requestLine renders the newline-terminated request.
func requestLine(path string, payload any, pathParams map[string]string) ([]byte, error) {
	body, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	line := []byte(fillPath(path, pathParams))
	if len(body) > 0 {
		line = append(append(line, ' '), body...)
	}
	return append(line, '\n'), nil
}

// fillPath lowercases the route and substitutes escaped {name} params.
// Param values keep their case.
func fillPath(pattern string, params map[string]string) string {
	out := strings.ToLower(pattern)
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+strings.ToLower(k)+"}", url.PathEscape(v))
	}
	return out
}

func encodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
