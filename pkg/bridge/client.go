// ABOUTME: Websocket client for the session bridge
// ABOUTME: Sends operations, matches results by request ID and surfaces state events
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/miniaud/minitester/pkg/session"
)

// ErrClientClosed is returned for requests on a closed client
var ErrClientClosed = errors.New("bridge client closed")

// Client is a connection to a bridge server
type Client struct {
	conn  *websocket.Conn
	log   *zap.SugaredLogger
	hello Hello

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Result
	closed  bool

	events chan session.StateChanged
	done   chan struct{}
	err    error
}

// Dial connects to the bridge at url (ws://host:port/control) and waits
// for the server hello.
func Dial(ctx context.Context, url string, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var hello Hello
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read server hello: %w", err)
	}
	if hello.Type != TypeHello {
		conn.Close()
		return nil, fmt.Errorf("expected %s, got %q", TypeHello, hello.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:    conn,
		log:     logger.Named("bridge.client"),
		hello:   hello,
		pending: make(map[string]chan Result),
		events:  make(chan session.StateChanged, 64),
		done:    make(chan struct{}),
	}
	c.log.Infow("Connected to bridge", "name", hello.Name, "server", hello.ServerID, "version", hello.Version)

	go c.readLoop()
	return c, nil
}

// Hello returns the server greeting
func (c *Client) Hello() Hello {
	return c.hello
}

// Events delivers session state changes broadcast by the server. The
// channel is closed when the connection ends; slow readers miss events.
func (c *Client) Events() <-chan session.StateChanged {
	return c.events
}

// Do sends one request and waits for its result
func (c *Client) Do(ctx context.Context, op Op, h session.Handle, backend session.Backend) (Result, error) {
	req := Request{ID: uuid.New().String(), Op: op, Handle: h, Backend: backend}
	wait := make(chan Result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClientClosed
	}
	c.pending[req.ID] = wait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return Result{}, fmt.Errorf("send %s: %w", op, err)
	}

	select {
	case res := <-wait:
		return res, nil
	case <-c.done:
		return Result{}, c.closeErr()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Play is Do(OpPlay) returning the handle to keep
func (c *Client) Play(ctx context.Context, h session.Handle, backend session.Backend) (session.Handle, error) {
	res, err := c.Do(ctx, OpPlay, h, backend)
	return res.Handle, err
}

// Close ends the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClientClosed
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.events)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnw("Bridge connection lost", "error", err)
				c.mu.Lock()
				c.err = fmt.Errorf("%w: %w", ErrClientClosed, err)
				c.mu.Unlock()
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warnw("Malformed server message", "error", err)
			continue
		}

		switch env.Type {
		case TypeResult:
			var res Result
			if err := json.Unmarshal(data, &res); err != nil {
				c.log.Warnw("Malformed result", "error", err)
				continue
			}
			c.deliver(res)
		case TypeState:
			var ev StateEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				c.log.Warnw("Malformed state event", "error", err)
				continue
			}
			select {
			case c.events <- ev.Event:
			default:
			}
		default:
			c.log.Debugw("Ignoring message", "type", env.Type)
		}
	}
}

func (c *Client) deliver(res Result) {
	c.mu.Lock()
	wait, ok := c.pending[res.ID]
	c.mu.Unlock()

	if !ok {
		c.log.Debugw("Result without a pending request", "id", res.ID, "error", res.Error)
		return
	}
	wait <- res
}
