// Package transport defines the contract between the endpoint core and the
// wire. The endpoint never imports tcp, websocket, or anything concrete —
// it only ever talks to Conn and Dialer, which is how the same reconnect
// logic runs over swappable backends.
package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// ErrClosed is returned by Recv and Send after the connection has been
// closed locally. Named errors like this let callers check the exact cause
// with errors.Is() instead of comparing raw strings.
//
// A local close is always deliberate — Classify maps it to Fatal so a
// disposal is never mistaken for a broken peer and retried.
var ErrClosed = errors.New("transport: connection closed")

// ErrProtocol is returned when the remote side violates the wire format in
// a way that cannot be recovered, such as an oversized frame header.
var ErrProtocol = errors.New("transport: protocol violation")

// ErrStreamDesync is returned when a timed operation expired partway through
// a frame. The bytes already consumed cannot be un-read, so the stream is no
// longer frame-aligned and the connection must be replaced.
var ErrStreamDesync = errors.New("transport: stream desynchronized")

// Conn is one established point-to-point connection. Exactly one goroutine
// receives at a time; Send and Close may be called from other goroutines.
// Close unblocks a pending Recv or Send.
type Conn interface {
	// Recv blocks until a whole message arrives or timeout elapses.
	// A timeout is reported as an error that classifies as Timeout.
	Recv(timeout time.Duration) ([]byte, error)

	// Send delivers one message within timeout.
	Send(payload []byte, timeout time.Duration) error

	// Close releases the connection. Safe to call multiple times —
	// subsequent calls are no-ops.
	Close() error
}

// Dialer opens connections to an address. Implementations decide what the
// address string means (host:port, ws:// URL, ...).
type Dialer interface {
	Dial(address string) (Conn, error)
}

// FailureClass tells the endpoint how to react to a transport failure.
type FailureClass int

const (
	// Retryable failures are transient network conditions — reset, refused,
	// unreachable, broken pipe, clean remote close. Worth reconnecting.
	Retryable FailureClass = iota

	// Timeout means the operation exceeded its deadline. On a receive this
	// usually just means "no data yet", not a broken connection.
	Timeout

	// Fatal failures cannot be resolved by retrying: local close, invalid
	// address, unrecoverable protocol violation.
	Fatal
)

func (c FailureClass) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Timeout:
		return "timeout"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps a raw transport failure to a FailureClass.
//
// The distinctions that matter:
//   - net.ErrClosed and ErrClosed mean we closed the connection ourselves.
//     That is never a reason to reconnect.
//   - Address errors (bad host:port, DNS name that does not exist) will fail
//     the same way forever — retrying them only burns the retry budget.
//   - Everything unrecognized defaults to Retryable, because a false retry
//     costs a few seconds while a false Fatal kills a healthy subscription.
func Classify(err error) FailureClass {
	if err == nil {
		return Retryable
	}

	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, net.ErrClosed):
		return Fatal
	case errors.Is(err, ErrProtocol):
		return Fatal
	case errors.Is(err, ErrStreamDesync):
		// the connection is unusable but the network may be fine
		return Retryable
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return Fatal
		}
		if dnsErr.IsTimeout {
			return Timeout
		}
		return Retryable
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return Fatal
	}
	var parseErr *net.ParseError
	if errors.As(err, &parseErr) {
		return Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	return Retryable
}
