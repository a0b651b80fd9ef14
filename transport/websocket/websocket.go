// Package websocket implements transport.Conn over a WebSocket connection.
// Unlike TCP, WebSocket already has message boundaries built in, so payloads
// travel as single binary messages with no extra framing.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/pairlink/pairlink/transport"
)

// DefaultConnectTimeout bounds Dial when the Dialer doesn't set its own.
const DefaultConnectTimeout = 10 * time.Second

// Dialer opens WebSocket connections. Address is a ws:// or wss:// URL.
type Dialer struct {
	// ConnectTimeout bounds the HTTP upgrade. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Dial connects to the given URL and wraps the connection.
func (d Dialer) Dial(address string) (transport.Conn, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wc, _, err := websocket.Dial(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(wc), nil
}

// Conn adapts a *websocket.Conn to transport.Conn.
//
// Reads happen on a background goroutine feeding a channel, and Recv selects
// on that channel with a timer. The indirection matters: this websocket
// library tears the whole connection down when a Read context expires, so a
// soft receive timeout must never reach the library's Read call.
type Conn struct {
	wc        *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	incoming  chan []byte
	readErr   error // written by readLoop before incoming closes, read after
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established *websocket.Conn. The conn may come from
// websocket.Dial on the client side or websocket.Accept in tests.
// Immediately starts the read loop goroutine.
func NewConn(wc *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	wc.SetReadLimit(16 << 20) // align with the tcp backend's frame cap
	c := &Conn{
		wc:       wc,
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan []byte, 64), // buffered so the reader doesn't block on slow consumers
	}
	go c.readLoop()
	return c
}

// Recv waits at most timeout for one binary message. A timeout leaves the
// connection intact — the next Recv picks up where this one left off.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-c.incoming:
		if !ok {
			return nil, c.mapReadErr()
		}
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("websocket recv: %w", context.DeadlineExceeded)
	}
}

// Send writes one binary message within timeout.
func (c *Conn) Send(payload []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	if err := c.wc.Write(ctx, websocket.MessageBinary, payload); err != nil {
		if c.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("websocket send: %w", context.DeadlineExceeded)
		}
		return err
	}
	return nil
}

// Close shuts the WebSocket down with a normal closure status and unblocks
// any pending Recv. Safe to call multiple times — cleanup runs exactly once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.wc.Close(websocket.StatusNormalClosure, "closed")
	})
	return c.closeErr
}

// readLoop pulls messages off the wire until the connection dies, then
// records why and closes the incoming channel.
func (c *Conn) readLoop() {
	for {
		_, data, err := c.wc.Read(c.ctx)
		if err != nil {
			c.readErr = err
			close(c.incoming)
			return
		}
		select {
		case c.incoming <- data:
		case <-c.ctx.Done():
			c.readErr = c.ctx.Err()
			close(c.incoming)
			return
		}
	}
}

// mapReadErr rewrites the read loop's terminal error into the transport
// taxonomy.
//
// Two cases need care:
//   - the internal context was cancelled: we closed the conn ourselves,
//     which must classify fatal so disposal is never retried.
//   - StatusNormalClosure / StatusGoingAway: the remote hung up cleanly.
//     Different implementations and shutdown timing produce either code.
//     For this endpoint a vanished peer is a lost connection, so it stays
//     retryable rather than fatal.
func (c *Conn) mapReadErr() error {
	err := c.readErr
	if c.ctx.Err() != nil {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return fmt.Errorf("peer closed connection: %w", err)
	}
	return err
}
