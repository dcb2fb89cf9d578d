package server_test

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/client"
	"kvstore/core"
	"kvstore/internal/server"
)

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// startServer runs an engine + server on a free port and returns the
// port and a channel that yields ListenAndServe's result.
func startServer(t *testing.T) (int, chan error) {
	t.Helper()

	engine, err := core.Open(core.Options{
		Path: filepath.Join(t.TempDir(), "data.log"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	port := freePort(t)
	srv := server.New(log.NewNopLogger(), engine, fmt.Sprintf("127.0.0.1:%d", port))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	// Give the listener a moment to bind.
	time.Sleep(50 * time.Millisecond)

	return port, errCh
}

func connect(t *testing.T, port int) *client.Client {
	t.Helper()

	c, err := client.Connect(client.WithHost("127.0.0.1"), client.WithPort(port))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGreetingOnConnect(t *testing.T) {
	port, _ := startServer(t)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Welcome to KVStore Server\n", string(buf[:n]))
}

func TestPutGet(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	resp, err := c.Put("name", "suraj")
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	resp, err = c.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "VALUE suraj", resp)
}

func TestPutValueWithSpaces(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	_, err := c.Put("city", "new york")
	require.NoError(t, err)

	resp, err := c.Get("city")
	require.NoError(t, err)
	assert.Equal(t, "VALUE new york", resp)
}

func TestGetMissingKey(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	resp, err := c.Get("nope")
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", resp)
}

func TestDelete(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	_, err := c.Put("a", "1")
	require.NoError(t, err)

	resp, err := c.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, "DELETED", resp)

	resp, err = c.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", resp)

	resp, err = c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", resp)
}

func TestPutWithTTLExpires(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	resp, err := c.PutTTL("session", "abc", 1)
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	resp, err = c.Get("session")
	require.NoError(t, err)
	assert.Equal(t, "VALUE abc", resp)

	time.Sleep(2100 * time.Millisecond)

	resp, err = c.Get("session")
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", resp)
}

func TestTTLCommand(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	resp, err := c.TTL("missing", 30)
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", resp)

	_, err = c.Put("k", "v")
	require.NoError(t, err)

	resp, err = c.TTL("k", 3600)
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	resp, err = c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "VALUE v", resp)
}

func TestNegativeTTLIsError(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	_, err := c.Put("k", "v")
	require.NoError(t, err)

	resp, err := c.TTL("k", -1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "ERR "), "got %q", resp)
}

func TestStats(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	_, err := c.Put("a", "1")
	require.NoError(t, err)
	_, err = c.Put("b", "2")
	require.NoError(t, err)
	_, err = c.Delete("a")
	require.NoError(t, err)

	stats, err := c.Stats()
	require.NoError(t, err)

	lines := strings.Split(stats, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "keys_in_index: 1", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "keys_in_cache: "))
	assert.Equal(t, "put_count: 2", lines[2])
	assert.Equal(t, "delete_count: 1", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "file_size_bytes: "))
	assert.Equal(t, "last_compaction_time: null", lines[5])
}

func TestCompactCommand(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	for i := 0; i < 10; i++ {
		_, err := c.Put("k", fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}

	resp, err := c.Compact()
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	resp, err = c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "VALUE v9", resp)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.NotContains(t, stats, "last_compaction_time: null")
}

func TestMalformedCommands(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	tests := []string{
		"FROB key",
		"GET",
		"PUT only-key",
		"TTL key soon",
	}

	for _, line := range tests {
		resp, err := c.Execute(line)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(resp, "ERR "), "line %q got %q", line, resp)
	}
}

func TestExitClosesOnlyConnection(t *testing.T) {
	port, _ := startServer(t)
	c := connect(t, port)

	resp, err := c.Execute("EXIT")
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	// The server keeps running for new connections.
	c2 := connect(t, port)
	resp, err = c2.Put("still", "up")
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)
}

func TestShutdownStopsServer(t *testing.T) {
	port, errCh := startServer(t)
	c := connect(t, port)

	resp, err := c.Shutdown()
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	select {
	case err := <-errCh:
		require.NoError(t, err, "clean shutdown must not report an error")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after SHUTDOWN")
	}

	// New connections are refused once the listener is gone.
	_, err = client.Connect(client.WithHost("127.0.0.1"), client.WithPort(port))
	require.Error(t, err)
}
