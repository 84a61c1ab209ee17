// Package client implements the strata-client side of the request
// protocol: a Client dials the TCP server once and issues Read/Write/Delete
// requests over the connection, and a Script replays a sequence of commands
// as independent requests — never as a single atomic multi-key batch, since
// the engine only promises single-key atomicity.
package client

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nyasuto/strata/internal/protocol"
)

// Client is a connected session against one strata-server.
type Client struct {
	conn net.Conn
	wire *protocol.Conn
}

// Dial connects to addr with a bounded timeout.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, wire: protocol.NewConn(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	if err := c.wire.WriteRequest(req); err != nil {
		return protocol.Response{}, fmt.Errorf("client: send request: %w", err)
	}
	resp, err := c.wire.ReadResponse()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("client: read response: %w", err)
	}
	if resp.Kind == protocol.KindError {
		return resp, fmt.Errorf("server: %s", resp.Error)
	}
	return resp, nil
}

// Write sends a Write request.
func (c *Client) Write(key, value string) error {
	_, err := c.roundTrip(protocol.Request{Kind: protocol.KindWrite, Key: key, Value: value})
	return err
}

// Read sends a Read request. found is false both when the key was never
// written and when it was deleted.
func (c *Client) Read(key string) (value string, found bool, err error) {
	resp, err := c.roundTrip(protocol.Request{Kind: protocol.KindRead, Key: key})
	if err != nil {
		return "", false, err
	}
	return resp.Value, resp.Found, nil
}

// Delete sends a Delete request.
func (c *Client) Delete(key string) error {
	_, err := c.roundTrip(protocol.Request{Kind: protocol.KindDelete, Key: key})
	return err
}

// Command is one parsed line of a script: "write k v", "read k", or
// "delete k" / "del k".
type Command struct {
	Kind  protocol.RequestKind
	Key   string
	Value string
}

// ParseScript parses newline-separated commands. Blank lines and lines
// starting with '#' are ignored.
func ParseScript(lines []string) ([]Command, error) {
	var commands []Command
	for lineNum, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		verb := fields[0]
		switch verb {
		case "write", "put":
			if len(fields) != 3 {
				return nil, fmt.Errorf("client: line %d: write requires key and value", lineNum+1)
			}
			commands = append(commands, Command{Kind: protocol.KindWrite, Key: fields[1], Value: fields[2]})
		case "read", "get":
			if len(fields) != 2 {
				return nil, fmt.Errorf("client: line %d: read requires a key", lineNum+1)
			}
			commands = append(commands, Command{Kind: protocol.KindRead, Key: fields[1]})
		case "delete", "del":
			if len(fields) != 2 {
				return nil, fmt.Errorf("client: line %d: delete requires a key", lineNum+1)
			}
			commands = append(commands, Command{Kind: protocol.KindDelete, Key: fields[1]})
		default:
			return nil, fmt.Errorf("client: line %d: unknown command %q", lineNum+1, verb)
		}
	}
	return commands, nil
}

// ScriptResult is the outcome of replaying one Command.
type ScriptResult struct {
	Command Command
	Value   string
	Found   bool
	Err     error
}

// RunScript replays commands sequentially over c, one request at a time.
// Each command is an independent round trip — a failure on one command
// does not roll back or block the ones after it, matching the engine's
// lack of cross-key transactional semantics.
func RunScript(c *Client, commands []Command) []ScriptResult {
	results := make([]ScriptResult, len(commands))
	for i, cmd := range commands {
		switch cmd.Kind {
		case protocol.KindWrite:
			err := c.Write(cmd.Key, cmd.Value)
			results[i] = ScriptResult{Command: cmd, Err: err}
		case protocol.KindRead:
			value, found, err := c.Read(cmd.Key)
			results[i] = ScriptResult{Command: cmd, Value: value, Found: found, Err: err}
		case protocol.KindDelete:
			err := c.Delete(cmd.Key)
			results[i] = ScriptResult{Command: cmd, Err: err}
		}
	}
	return results
}
