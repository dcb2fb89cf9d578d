// Package protocol implements the ASCII line protocol spoken between
// server and clients: one newline-terminated command per request, one
// newline-terminated response (multi-line for STATS).
package protocol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Command names accepted on the wire.
const (
	CmdPut      = "PUT"
	CmdGet      = "GET"
	CmdDel      = "DEL"
	CmdTTL      = "TTL"
	CmdStats    = "STATS"
	CmdCompact  = "COMPACT"
	CmdShutdown = "SHUTDOWN"
	CmdExit     = "EXIT"
)

// Command is a decoded client request.
//
// The meaning of Key, Value and TTLSeconds depends on Name: PUT carries
// key + value (+ optional TTL clause), GET/DEL carry a key, TTL carries
// key + seconds, the rest carry nothing.
type Command struct {
	Name       string
	Key        string
	Value      string
	TTLSeconds int64
	HasTTL     bool
}

// ParseCommand decodes a single command line (without its newline).
//
// The command word is case-insensitive. For PUT, the value is the rest
// of the line after the key, its words re-joined by single spaces (runs
// of whitespace collapse); a trailing "TTL <n>" clause with integer n
// is peeled off as the key's time-to-live:
//
//	PUT city new york         -> value "new york"
//	PUT session abc TTL 30    -> value "abc", ttl 30s
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty command")
	}

	name := strings.ToUpper(fields[0])
	args := fields[1:]

	switch name {
	case CmdPut:
		if len(args) < 2 {
			return nil, errors.New("PUT requires: PUT key value [TTL seconds]")
		}
		cmd := &Command{Name: name, Key: args[0]}
		valueParts := args[1:]
		if n := len(valueParts); n >= 3 && strings.ToUpper(valueParts[n-2]) == CmdTTL {
			if ttl, err := strconv.ParseInt(valueParts[n-1], 10, 64); err == nil {
				cmd.TTLSeconds = ttl
				cmd.HasTTL = true
				valueParts = valueParts[:n-2]
			}
		}
		cmd.Value = strings.Join(valueParts, " ")
		return cmd, nil

	case CmdGet:
		if len(args) != 1 {
			return nil, errors.New("GET requires: GET key")
		}
		return &Command{Name: name, Key: args[0]}, nil

	case CmdDel:
		if len(args) != 1 {
			return nil, errors.New("DEL requires: DEL key")
		}
		return &Command{Name: name, Key: args[0]}, nil

	case CmdTTL:
		if len(args) != 2 {
			return nil, errors.New("TTL requires: TTL key seconds")
		}
		ttl, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, errors.Errorf("TTL seconds must be an integer, got %q", args[1])
		}
		return &Command{Name: name, Key: args[0], TTLSeconds: ttl, HasTTL: true}, nil

	case CmdStats, CmdCompact, CmdShutdown, CmdExit:
		if len(args) != 0 {
			return nil, errors.Errorf("%s takes no arguments", name)
		}
		return &Command{Name: name}, nil

	default:
		return nil, errors.Errorf("unknown command: %s", fields[0])
	}
}
