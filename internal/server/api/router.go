package api

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
)

// Request is a parsed API line.
type Request struct {
	Ctx    context.Context
	Params map[string]string
	Args   []string
}

// Response carries the JSON line written back on success.
type Response struct {
	JSON string
}

// HandlerFunc serves one request line. A returned error is sent to the
// client as {"error": "..."}.
type HandlerFunc func(req *Request, res *Response, logger *slog.Logger) error

// StreamHandlerFunc takes over the connection after its first line.
type StreamHandlerFunc func(conn net.Conn, params map[string]string, logger *slog.Logger) error

type route[H any] struct {
	segments []string
	handler  H
}

// Router matches slash separated paths. Literal segments match without
// regard to case; segments written as {name} capture the unescaped path
// element under name, keeping its case.
type Router struct {
	mu      sync.RWMutex
	routes  []route[HandlerFunc]
	streams []route[StreamHandlerFunc]
}

func NewRouter() *Router { return &Router{} }

// Register adds a request/response handler.
func (r *Router) Register(pattern string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route[HandlerFunc]{segments: splitPattern(pattern), handler: h})
}

// RegisterStream adds a handler that owns the connection.
func (r *Router) RegisterStream(pattern string, h StreamHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, route[StreamHandlerFunc]{segments: splitPattern(pattern), handler: h})
}

// Match returns the first handler whose pattern matches path.
func (r *Router) Match(path string) (HandlerFunc, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return match(r.routes, path)
}

// MatchStream is Match for stream handlers.
func (r *Router) MatchStream(path string) (StreamHandlerFunc, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return match(r.streams, path)
}

func splitPattern(p string) []string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		if !isParam(s) {
			segs[i] = strings.ToLower(s)
		}
	}
	return segs
}

func isParam(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func match[H any](routes []route[H], path string) (H, map[string]string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, rt := range routes {
		if len(rt.segments) != len(parts) {
			continue
		}
		params := map[string]string{}
		ok := true
		for i, seg := range rt.segments {
			if isParam(seg) {
				if parts[i] == "" {
					ok = false
					break
				}
				v, err := url.PathUnescape(parts[i])
				if err != nil {
					ok = false
					break
				}
				params[seg[1:len(seg)-1]] = v
				continue
			}
			if !strings.EqualFold(seg, parts[i]) {
				ok = false
				break
			}
		}
		if ok {
			return rt.handler, params
		}
	}
	var zero H
	return zero, nil
}
