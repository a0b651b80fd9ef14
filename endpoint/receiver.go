// Package endpoint maintains a long-lived, self-healing connection to a
// single remote peer. Inbound messages are pushed to an observer callback
// registered once; when the connection drops, the endpoint reconnects with
// increasing backoff underneath the same registration, so the observer keeps
// receiving without doing anything. A thread-safe handle exposes the
// connection state and a one-shot disposal operation.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pairlink/pairlink/transport"
)

// Observer receives everything that happens on a Receiver: successful
// deliveries as (nil, payload) and failures as (err, nil). Failure
// notifications are informational — the Receiver handles the failure itself
// by retrying or terminating; the observer only gets to watch.
//
// Calls are made from the Receiver's own goroutine, strictly in the order
// events occurred. A slow observer slows down reception.
type Observer func(err error, payload []byte)

// Receiver is the disposable handle for one reception subscription.
// It owns exactly one transport connection at a time; reconnection swaps
// the connection underneath while the handle identity and the observer
// binding stay constant.
//
// All methods are safe for concurrent use from any goroutine, with one
// exception: Dispose must not be called from inside the observer callback,
// because it waits out an in-flight delivery before returning.
type Receiver struct {
	id       string
	address  string
	opts     Options
	dialer   transport.Dialer
	observer Observer
	log      zerolog.Logger

	machine    *stateMachine
	disposed   atomic.Bool // monotonic, implies machine state Disposed
	retryCount atomic.Int32

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	disposeOnce sync.Once

	connMu sync.Mutex
	conn   transport.Conn

	// deliverMu fences observer invocations against disposal: Dispose takes
	// it to flip the disposed flag, so a delivery is either fully before or
	// fully after disposal, never torn across it.
	deliverMu sync.Mutex
}

// Receive starts receiving messages from address and returns immediately.
// The connection is established on a background goroutine; a failed first
// attempt is reported through the observer and retried like any later
// disconnection, so this function itself never fails.
//
// A nil observer discards everything, which is only useful for tests.
func Receive(dialer transport.Dialer, address string, observer Observer, opts Options) *Receiver {
	if observer == nil {
		observer = func(error, []byte) {}
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver{
		id:       uuid.NewString(),
		address:  address,
		opts:     opts,
		dialer:   dialer,
		observer: observer,
		machine:  newStateMachine(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.log = opts.logger().With().
		Str("endpoint", r.id).
		Str("address", address).
		Logger()

	go r.run()
	return r
}

// IsConnected reports whether the last established connection is believed
// healthy. Never blocks.
func (r *Receiver) IsConnected() bool {
	return r.machine.current() == StateConnected
}

// IsDisposed reports whether the Receiver has been terminated, either by
// Dispose or by exhausting its retry budget. Monotonic: once true it stays
// true. Never blocks.
func (r *Receiver) IsDisposed() bool {
	return r.disposed.Load()
}

// State returns the current lifecycle state.
func (r *Receiver) State() ConnectionState {
	return r.machine.current()
}

// RetryCount returns the number of reconnect attempts made since the last
// successful connection. Resets to zero on every successful (re)connect.
func (r *Receiver) RetryCount() int {
	return int(r.retryCount.Load())
}

// Address returns the peer address captured at Receive time.
func (r *Receiver) Address() string {
	return r.address
}

// ID returns the correlation id carried in this Receiver's log events.
func (r *Receiver) ID() string {
	return r.id
}

// Done returns a channel that closes when the receive loop has fully
// stopped and the transport is released.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Dispose terminates the subscription. It stops the receive loop, cutting
// short any pending receive or backoff wait, closes the transport, and
// returns once the loop has confirmed shutdown. No observer delivery happens
// after Dispose is called — a message already in flight is discarded.
//
// Idempotent: redundant calls have no further effect and return once the
// first call's teardown completes.
func (r *Receiver) Dispose() {
	r.disposeOnce.Do(func() {
		r.deliverMu.Lock()
		r.disposed.Store(true)
		r.deliverMu.Unlock()

		r.machine.dispose()
		r.cancel()
		r.closeConn()
		r.log.Debug().Msg("disposed")
	})
	<-r.done
}

// run is the receive loop. It lives on its own goroutine from Receive until
// disposal, a fatal failure, or retry exhaustion.
func (r *Receiver) run() {
	defer close(r.done)
	defer r.closeConn()

	conn, ok := r.establish()
	if !ok {
		return
	}

	for {
		if r.disposed.Load() {
			return
		}

		payload, err := conn.Recv(r.opts.RecvTimeout)

		// disposal wins over anything that arrived while it was requested
		if r.disposed.Load() {
			return
		}

		if err == nil {
			r.deliver(nil, payload)
			continue
		}

		switch transport.Classify(err) {
		case transport.Timeout:
			// no data within the window, the connection itself is fine —
			// surface it distinctly and issue the next receive
			r.deliver(fmt.Errorf("%w: %w", ErrTimedOut, err), nil)

		case transport.Fatal:
			r.log.Error().Err(err).Msg("unrecoverable receive failure")
			r.deliver(fmt.Errorf("%w: %w", ErrRecvFailed, err), nil)
			r.terminate()
			return

		default: // Retryable
			r.log.Warn().Err(err).Msg("connection lost")
			r.deliver(fmt.Errorf("%w: %w", ErrConnectionLost, err), nil)
			r.closeConn()
			if !r.machine.transition(StateDisconnected) {
				return // disposal won the race
			}
			if conn, ok = r.reconnect(); !ok {
				return
			}
		}
	}
}

// establish makes the initial connection attempt, falling into the retry
// machinery when it fails with something transient.
func (r *Receiver) establish() (transport.Conn, bool) {
	conn, err := r.dialOnce()
	if err == nil {
		return conn, true
	}
	if r.disposed.Load() {
		return nil, false
	}

	r.deliver(fmt.Errorf("%w: %w", ErrConnectFailed, err), nil)

	if transport.Classify(err) == transport.Fatal {
		r.log.Error().Err(err).Msg("initial connect failed fatally")
		r.terminate()
		return nil, false
	}
	r.machine.transition(StateDisconnected)
	return r.reconnect()
}

// reconnect runs one reconnection episode: wait, attempt, repeat, until a
// connection is established, the budget is exhausted, or disposal interrupts.
func (r *Receiver) reconnect() (transport.Conn, bool) {
	for {
		if r.disposed.Load() {
			return nil, false
		}

		made := int(r.retryCount.Load())
		delay, ok := r.opts.Retry.Next(made)
		if !ok {
			r.log.Error().Int("attempts", made).Msg("retry budget exhausted")
			r.deliver(ErrReconnectExhausted, nil)
			r.terminate()
			return nil, false
		}

		attempt := made + 1
		r.retryCount.Store(int32(attempt))
		r.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")

		if !r.wait(delay) {
			return nil, false // disposal cut the backoff short
		}
		if !r.machine.transition(StateConnecting) {
			return nil, false // disposal won
		}

		conn, err := r.dialOnce()
		if err == nil {
			r.log.Info().Int("attempts", attempt).Msg("reconnected")
			return conn, true
		}
		if r.disposed.Load() || errors.Is(err, transport.ErrClosed) {
			return nil, false
		}

		r.deliver(fmt.Errorf("%w: %w", ErrConnectFailed, err), nil)

		// a timeout while dialing is a failed attempt like any other;
		// only a genuinely fatal error ends the episode early
		if transport.Classify(err) == transport.Fatal {
			r.log.Error().Err(err).Msg("reconnect failed fatally")
			r.terminate()
			return nil, false
		}
		r.machine.transition(StateDisconnected)
	}
}

// dialOnce opens one connection and publishes it as current. On success the
// retry counter resets before the Connected state becomes visible, so a
// reader that observes Connected always observes a zero count.
func (r *Receiver) dialOnce() (transport.Conn, error) {
	conn, err := r.dialer.Dial(r.address)
	if err != nil {
		return nil, err
	}

	r.connMu.Lock()
	if r.disposed.Load() {
		// disposal raced the dial; the fresh connection is not ours to keep
		r.connMu.Unlock()
		conn.Close()
		return nil, transport.ErrClosed
	}
	r.conn = conn
	r.connMu.Unlock()

	r.retryCount.Store(0)
	r.machine.transition(StateConnected)
	r.log.Debug().Msg("connected")
	return conn, nil
}

// deliver invokes the observer unless disposal already happened. The check
// and the call share the mutex Dispose uses to flip the flag, which is what
// guarantees nothing reaches the observer after Dispose returns.
func (r *Receiver) deliver(err error, payload []byte) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	if r.disposed.Load() {
		return
	}
	r.observer(err, payload)
}

// terminate marks the Receiver permanently dead from inside the loop, for
// the exhaustion and fatal-failure paths. Dispose reuses the same flags, so
// either path leaves the handle in the identical terminal shape.
func (r *Receiver) terminate() {
	r.disposed.Store(true)
	r.machine.dispose()
	r.cancel()
	r.closeConn()
}

// closeConn releases the current connection, if any.
func (r *Receiver) closeConn() {
	r.connMu.Lock()
	conn := r.conn
	r.conn = nil
	r.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// wait sleeps for d unless disposal interrupts, reporting whether the full
// delay elapsed.
func (r *Receiver) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
