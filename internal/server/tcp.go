// Package server exposes the engine over a TCP line protocol: one ASCII
// command per line in, one response per line out.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"kvstore/core"
	"kvstore/internal/protocol"
)

// Server accepts client connections and maps protocol commands 1:1 onto
// engine operations. A SHUTDOWN command closes the engine and stops the
// server cleanly.
type Server struct {
	logger log.Logger
	engine *core.Engine
	addr   string

	ln           net.Listener
	shutdownOnce sync.Once
	shuttingDown bool
	mu           sync.Mutex
}

// New returns a server for engine listening on addr.
func New(logger log.Logger, engine *core.Engine, addr string) *Server {
	return &Server{logger: logger, engine: engine, addr: addr}
}

// ListenAndServe accepts connections until a SHUTDOWN command arrives or
// ctx is cancelled, handling each client in its own goroutine. It
// returns nil on a clean shutdown and the listener error otherwise.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	s.ln = ln

	// When ctx is cancelled, close the listener to break the accept loop.
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	level.Info(s.logger).Log("msg", "server listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isShuttingDown() || ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return errors.Wrap(err, "accept connection")
		}

		go s.handleConn(conn)
	}
}

// stop closes the listener exactly once.
func (s *Server) stop() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.shuttingDown = true
		s.mu.Unlock()

		if s.ln != nil {
			s.ln.Close()
		}
	})
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s.reply(conn, protocol.Greeting)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			s.reply(conn, protocol.Error(err.Error()))
			continue
		}

		if done := s.dispatch(conn, cmd); done {
			return
		}
	}
}

// dispatch executes one command and writes its response. It reports
// whether the connection should be closed afterwards.
func (s *Server) dispatch(conn net.Conn, cmd *protocol.Command) bool {
	switch cmd.Name {
	case protocol.CmdPut:
		if err := s.engine.Put(cmd.Key, cmd.Value, cmd.TTLSeconds); err != nil {
			s.reply(conn, protocol.Error(err.Error()))
		} else {
			s.reply(conn, protocol.RespOK)
		}

	case protocol.CmdGet:
		value, err := s.engine.Get(cmd.Key)
		switch {
		case err == nil:
			s.reply(conn, protocol.Value(value))
		case errors.Is(err, core.ErrKeyNotFound):
			s.reply(conn, protocol.RespNotFound)
		default:
			s.reply(conn, protocol.Error(err.Error()))
		}

	case protocol.CmdDel:
		live, err := s.engine.Delete(cmd.Key)
		switch {
		case err != nil:
			s.reply(conn, protocol.Error(err.Error()))
		case live:
			s.reply(conn, protocol.RespDeleted)
		default:
			s.reply(conn, protocol.RespNotFound)
		}

	case protocol.CmdTTL:
		err := s.engine.TTL(cmd.Key, cmd.TTLSeconds)
		switch {
		case err == nil:
			s.reply(conn, protocol.RespOK)
		case errors.Is(err, core.ErrKeyNotFound):
			s.reply(conn, protocol.RespNotFound)
		default:
			s.reply(conn, protocol.Error(err.Error()))
		}

	case protocol.CmdStats:
		stats, err := s.engine.Stats()
		if err != nil {
			s.reply(conn, protocol.Error(err.Error()))
		} else {
			s.reply(conn, formatStats(stats))
		}

	case protocol.CmdCompact:
		if err := s.engine.Compact(); err != nil {
			s.reply(conn, protocol.Error(err.Error()))
		} else {
			s.reply(conn, protocol.RespOK)
		}

	case protocol.CmdShutdown:
		if err := s.engine.Close(); err != nil {
			level.Error(s.logger).Log("msg", "engine close failed on shutdown", "err", err)
		}
		s.reply(conn, protocol.RespOK)
		s.stop()
		return true

	case protocol.CmdExit:
		s.reply(conn, protocol.RespOK)
		return true
	}

	return false
}

// formatStats renders the stats snapshot as "k: v" lines, one per field.
func formatStats(st core.Stats) string {
	last := "null"
	if !st.LastCompaction.IsZero() {
		last = strconv.FormatInt(st.LastCompaction.Unix(), 10)
	}

	lines := []string{
		fmt.Sprintf("keys_in_index: %d", st.KeysInIndex),
		fmt.Sprintf("keys_in_cache: %d", st.KeysInCache),
		fmt.Sprintf("put_count: %d", st.PutCount),
		fmt.Sprintf("delete_count: %d", st.DeleteCount),
		fmt.Sprintf("file_size_bytes: %d", st.FileSizeBytes),
		fmt.Sprintf("last_compaction_time: %s", last),
	}
	return strings.Join(lines, "\n")
}

func (s *Server) reply(conn net.Conn, msg string) {
	if _, err := conn.Write([]byte(msg + "\n")); err != nil {
		level.Debug(s.logger).Log("msg", "client disconnected", "err", err)
	}
}
