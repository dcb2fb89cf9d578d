package client

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"kvstore/internal/config"
)

// statsLines is the number of "k: v" lines in a STATS response.
const statsLines = 6

// Client is a connection to a KVStore server. Responses are returned as
// the raw protocol lines the server sent.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Connect dials the server and consumes its greeting line.
func Connect(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, reader: bufio.NewReader(conn)}

	if _, err := c.readLine(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "read greeting")
	}

	return c, nil
}

// Put stores value under key with no expiry.
func (c *Client) Put(key, value string) (string, error) {
	return c.Execute(fmt.Sprintf("PUT %s %s", key, value))
}

// PutTTL stores value under key expiring after ttlSeconds.
func (c *Client) PutTTL(key, value string, ttlSeconds int64) (string, error) {
	return c.Execute(fmt.Sprintf("PUT %s %s TTL %d", key, value, ttlSeconds))
}

// Get retrieves the value stored under key.
func (c *Client) Get(key string) (string, error) {
	return c.Execute("GET " + key)
}

// Delete removes key.
func (c *Client) Delete(key string) (string, error) {
	return c.Execute("DEL " + key)
}

// TTL sets key's expiry to ttlSeconds from now.
func (c *Client) TTL(key string, ttlSeconds int64) (string, error) {
	return c.Execute(fmt.Sprintf("TTL %s %d", key, ttlSeconds))
}

// Stats returns the server's stats snapshot as "k: v" lines.
func (c *Client) Stats() (string, error) {
	if err := c.send("STATS"); err != nil {
		return "", err
	}

	lines := make([]string, 0, statsLines)
	for i := 0; i < statsLines; i++ {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n"), nil
}

// Compact asks the server to compact its log.
func (c *Client) Compact() (string, error) {
	return c.Execute("COMPACT")
}

// Shutdown stops the server.
func (c *Client) Shutdown() (string, error) {
	return c.Execute("SHUTDOWN")
}

// Execute sends one raw command line and returns the single response
// line. STATS responses span multiple lines; use Stats for those.
func (c *Client) Execute(line string) (string, error) {
	if err := c.send(line); err != nil {
		return "", err
	}
	return c.readLine()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(line string) error {
	_, err := c.conn.Write([]byte(line + "\n"))
	return errors.Wrap(err, "send command")
}

func (c *Client) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
