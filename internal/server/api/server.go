// Package api implements the line based TCP control API. Each request is a
// single line "<path> [args...]"; each reply is a single JSON line.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
)

// Server serves the control API.
type Server struct {
	addr   string
	ln     net.Listener
	logger *slog.Logger
	router *Router

	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// New creates a server for addr. Handlers are added through Router.
func New(addr string, logger *slog.Logger) *Server {
	return &Server{
		addr:   addr,
		logger: logger,
		router: NewRouter(),
		conns:  map[net.Conn]struct{}{},
	}
}

// Router returns the router so callers can register handlers.
func (a *Server) Router() *Router { return a.router }

// Addr returns the bound address once started.
func (a *Server) Addr() string {
	if a.ln != nil {
		return a.ln.Addr().String()
	}
	return a.addr
}

// Start listens on the configured address and serves in the background.
func (a *Server) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.ln = ln
	a.logger.Info("API listening", "addr", ln.Addr().String())
	a.wg.Add(1)
	go a.serve()
	return nil
}

// Close stops accepting, drops open connections and waits for handlers.
func (a *Server) Close() {
	if a.ln != nil {
		_ = a.ln.Close()
	}
	a.mu.Lock()
	a.closed = true
	for c := range a.conns {
		_ = c.Close()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Server) serve() {
	defer a.wg.Done()
	for {
		c, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				a.logger.Info("API server stopped")
				return
			}
			a.logger.Info("API accept error", "error", err)
			return
		}
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			_ = c.Close()
			continue
		}
		a.conns[c] = struct{}{}
		a.wg.Add(1)
		a.mu.Unlock()
		go func() {
			defer a.wg.Done()
			a.handleConn(c)
			a.mu.Lock()
			delete(a.conns, c)
			a.mu.Unlock()
		}()
	}
}

// WriteError writes an error line.
func WriteError(w io.Writer, msg string) {
	problemJSON, _ := json.Marshal(map[string]string{"error": msg})
	fmt.Fprintf(w, "%s\n", problemJSON)
}

func writeOK(w io.Writer, rest string) {
	if rest == "" {
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "%s\n", rest)
	}
}

func (a *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	connLogger := a.logger.With("remote", conn.RemoteAddr().String())
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				connLogger.Error("read api line", "error", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		connLogger.Debug("api cmd", "cmd", line)
		fields := strings.Fields(line)
		path := fields[0]
		args := fields[1:]

		if h, params := a.router.Match(path); h != nil {
			req := &Request{Ctx: connCtx, Params: params, Args: args}
			res := &Response{}
			if err := h(req, res, connLogger); err != nil {
				connLogger.Warn("api handler error", "path", path, "error", err)
				WriteError(conn, err.Error())
				continue
			}
			writeOK(conn, res.JSON)
			continue
		}
		if sh, params := a.router.MatchStream(path); sh != nil {
			connLogger.Debug("api stream begin", "path", path)
			if err := sh(&bufferedConn{Conn: conn, r: r}, params, connLogger); err != nil {
				connLogger.Warn("api stream handler error", "path", path, "error", err)
			}
			connLogger.Debug("api stream end", "path", path)
			return
		}
		connLogger.Warn("api unknown path", "path", path)
		WriteError(conn, "unknown path")
	}
}

// bufferedConn hands a stream handler the bytes already read past the
// request line.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
