// Package tcp implements transport.Conn over a raw TCP connection.
package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pairlink/pairlink/transport"
)

// MaxFrameSize caps a single message. A peer announcing a larger frame is
// either broken or hostile; the connection is not worth keeping.
const MaxFrameSize = 16 << 20 // 16 MiB

// DefaultConnectTimeout bounds Dial when the Dialer doesn't set its own.
const DefaultConnectTimeout = 10 * time.Second

// Dialer opens framed TCP connections. Address is standard "host:port".
type Dialer struct {
	// ConnectTimeout bounds the TCP handshake. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Dial connects to address and wraps the connection for framed messaging.
func (d Dialer) Dial(address string) (transport.Conn, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	nc, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// Conn frames messages over a TCP stream.
//
// Wire format for each message:
//
//	[4 bytes: payload length uint32 big-endian][N bytes: payload]
//
// We define our own framing because TCP is a stream protocol with no concept
// of message boundaries. Without framing, a Read() call might return half a
// message or two messages joined together. This format lets us always read
// exactly one message at a time.
type Conn struct {
	nc        net.Conn
	readMu    sync.Mutex // one reader at a time, frames must not interleave
	writeMu   sync.Mutex // one writer at a time, TCP writes are not concurrent-safe
	closeOnce sync.Once  // guarantees cleanup runs exactly once
	closeErr  error
}

// NewConn wraps an established net.Conn. Dialing or accepting happens outside,
// which is what lets tests drive a Conn over net.Pipe or a loopback listener.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Recv reads exactly one framed message, waiting at most timeout.
//
// A deadline that expires before the first header byte is a clean timeout —
// the stream is still aligned and the next Recv picks up where this one left
// off. A deadline that expires after a partial read leaves the stream
// unusable, reported as transport.ErrStreamDesync.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	var lenBuf [4]byte
	n, err := io.ReadFull(c.nc, lenBuf[:])
	if err != nil {
		if n > 0 && isDeadline(err) {
			return nil, fmt.Errorf("%w: timed out inside frame header", transport.ErrStreamDesync)
		}
		return nil, err
	}

	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", transport.ErrProtocol, frameLen, MaxFrameSize)
	}

	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		if isDeadline(err) {
			return nil, fmt.Errorf("%w: timed out inside frame body", transport.ErrStreamDesync)
		}
		return nil, err
	}
	return payload, nil
}

// Send writes one framed message, waiting at most timeout for the kernel to
// accept all of it.
func (c *Conn) Send(payload []byte, timeout time.Duration) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit %d", transport.ErrProtocol, len(payload), MaxFrameSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.nc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

// Close shuts the connection down and unblocks any pending Recv or Send.
// Safe to call multiple times — cleanup runs exactly once due to sync.Once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// isDeadline reports whether err is a deadline expiry rather than a real
// connection failure.
func isDeadline(err error) bool {
	return transport.Classify(err) == transport.Timeout
}
