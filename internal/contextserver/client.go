package contextserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/soyeahso/crewdesk/internal/logging"
)

// ErrClosed is returned for calls on a client whose stream has ended.
var ErrClosed = errors.New("context server connection closed")

// Client speaks newline-delimited JSON-RPC 2.0 to one server.
type Client struct {
	w   io.Writer
	log *logging.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan rpcResponse
	err     error

	done chan struct{}
}

// NewClient starts reading responses from r. Requests are written to w.
func NewClient(r io.Reader, w io.Writer, log *logging.Logger) *Client {
	c := &Client{
		w:       w,
		log:     log,
		pending: make(map[int64]chan rpcResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Initialize performs the handshake and announces readiness.
func (c *Client) Initialize(ctx context.Context, info ClientInfo) (*InitializeResult, error) {
	var res InitializeResult
	err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      info,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := c.notify("notifications/initialized", nil); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}
	return &res, nil
}

// ListTools returns every tool the server advertises, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	var (
		all    []RemoteTool
		cursor string
	)
	for {
		var page listToolsResult
		if err := c.call(ctx, "tools/list", listToolsParams{Cursor: cursor}, &page); err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// Done is closed once the response stream ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case resp := <-ch:
			return decodeResult(resp, out)
		default:
		}
		return c.closedErr()
	case resp := <-ch:
		return decodeResult(resp, out)
	}
}

func decodeResult(resp rpcResponse, out any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *Client) notify(method string, params any) error {
	return c.write(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", req.Method, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", req.Method, err)
	}
	return nil
}

func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.log.Debug().Err(err).Msg("ignoring unparseable line")
			continue
		}
		if resp.ID == nil || resp.Method != "" {
			c.log.Debug().Str("method", resp.Method).Msg("ignoring server-initiated message")
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}

	err := scanner.Err()
	if err == nil {
		err = ErrClosed
	} else {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
