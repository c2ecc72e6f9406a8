package testing

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/proxi-pad/proxi/internal/server/api"
)

// StartAPIServer starts an API server on a free port and calls register to
// let the test add the handlers it needs. Returns the address and a function
// to call when done.
func StartAPIServer(t *testing.T, register func(r *api.Router)) (addr string, done func()) {
	t.Helper()
	apiSrv := api.New("127.0.0.1:0", slog.Default())
	if register != nil {
		register(apiSrv.Router())
	}
	if err := apiSrv.Start(); err != nil {
		t.Fatalf("api start failed: %v", err)
	}
	return apiSrv.Addr(), apiSrv.Close
}

// ExecCmd dials the API server, sends cmd and returns the response line
// without the trailing newline. Client errors call t.Fatalf.
func ExecCmd(t *testing.T, addr string, cmd string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()
	r := bufio.NewReader(c)
	_, _ = fmt.Fprintf(c, "%s\n", cmd)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		t.Fatalf("read failed: %v", err)
	}
	if len(line) == 0 {
		return ""
	}
	return line[:len(line)-1]
}
