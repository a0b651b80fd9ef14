package endpoint

import (
	"fmt"

	"github.com/pairlink/pairlink/transport"
)

// Request performs a one-shot request/response exchange: open a connection,
// send payload within the send timeout, wait for the reply within the
// receive timeout, close. Independent of any Receiver.
//
// Request never retries — retry and backoff belong exclusively to the
// push-style receive path. Failures are returned directly: the error wraps
// ErrConnectFailed, ErrSendFailed, or ErrRecvFailed depending on which step
// broke, and additionally wraps ErrTimedOut when the step timed out, so
// callers can distinguish a dead peer from a slow one with errors.Is.
func Request(dialer transport.Dialer, address string, payload []byte, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	conn, err := dialer.Dial(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	defer conn.Close()

	if err := conn.Send(payload, opts.SendTimeout); err != nil {
		if transport.Classify(err) == transport.Timeout {
			return nil, fmt.Errorf("%w: %w: %w", ErrSendFailed, ErrTimedOut, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	reply, err := conn.Recv(opts.RecvTimeout)
	if err != nil {
		if transport.Classify(err) == transport.Timeout {
			return nil, fmt.Errorf("%w: %w: %w", ErrRecvFailed, ErrTimedOut, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRecvFailed, err)
	}
	return reply, nil
}

// Probe reports whether address currently accepts connections. It opens and
// immediately closes a connection, nothing more — a true result means the
// peer is reachable, not that it will answer anything.
func Probe(dialer transport.Dialer, address string) bool {
	conn, err := dialer.Dial(address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
