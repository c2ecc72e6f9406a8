package api_test

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxi-pad/proxi/internal/server/api"
	th "github.com/proxi-pad/proxi/internal/testing"
)

func TestServerRoundTrip(t *testing.T) {
	addr, done := th.StartAPIServer(t, func(r *api.Router) {
		r.Register("echo", func(req *api.Request, res *api.Response, _ *slog.Logger) error {
			res.JSON = fmt.Sprintf(`{"args":%q}`, strings.Join(req.Args, ","))
			return nil
		})
		r.Register("fail", func(*api.Request, *api.Response, *slog.Logger) error {
			return errors.New("boom")
		})
		r.Register("empty", func(*api.Request, *api.Response, *slog.Logger) error { return nil })
		r.Register("dev/{id}", func(req *api.Request, res *api.Response, _ *slog.Logger) error {
			res.JSON = fmt.Sprintf(`{"id":%q}`, req.Params["id"])
			return nil
		})
	})
	defer done()

	assert.Equal(t, `{"args":"a,b"}`, th.ExecCmd(t, addr, "ECHO a b"))
	assert.Equal(t, `{"error":"boom"}`, th.ExecCmd(t, addr, "fail"))
	assert.Equal(t, `{"error":"unknown path"}`, th.ExecCmd(t, addr, "nope"))
	assert.Equal(t, "", th.ExecCmd(t, addr, "empty"))
	assert.Equal(t, `{"id":"Pad/A"}`, th.ExecCmd(t, addr, "DEV/Pad%2FA"))
}

func TestServerKeepsConnectionOpen(t *testing.T) {
	addr, done := th.StartAPIServer(t, func(r *api.Router) {
		r.Register("ping", func(_ *api.Request, res *api.Response, _ *slog.Logger) error {
			res.JSON = `{}`
			return nil
		})
	})
	defer done()

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	r := bufio.NewReader(c)
	for range 3 {
		_, err := fmt.Fprint(c, "ping\n\n")
		require.NoError(t, err)
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "{}\n", line)
	}
}

func TestServerStreamSeesBufferedBytes(t *testing.T) {
	got := make(chan []byte, 1)
	addr, done := th.StartAPIServer(t, func(r *api.Router) {
		r.RegisterStream("raw/{id}", func(conn net.Conn, params map[string]string, _ *slog.Logger) error {
			buf := make([]byte, 4)
			if _, err := io.ReadFull(conn, buf); err != nil {
				return err
			}
			got <- buf
			_, err := conn.Write([]byte(params["id"]))
			return err
		})
	})
	defer done()

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("raw/7\n\x01\x02\x03\x04"))
	require.NoError(t, err)

	select {
	case b := <-got:
		assert.Equal(t, []byte{1, 2, 3, 4}, b)
	case <-time.After(time.Second):
		t.Fatal("stream handler did not receive frame")
	}
	reply := make([]byte, 1)
	_, err = io.ReadFull(c, reply)
	require.NoError(t, err)
	assert.Equal(t, "7", string(reply))
}

func TestServerCloseDropsConnections(t *testing.T) {
	srv := api.New("127.0.0.1:0", slog.New(slog.DiscardHandler))
	require.NoError(t, srv.Start())

	c, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer c.Close()
	// make sure the connection is being served before closing
	_, err = fmt.Fprint(c, "nope\n")
	require.NoError(t, err)
	_, err = bufio.NewReader(c).ReadString('\n')
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an idle connection")
	}
}
