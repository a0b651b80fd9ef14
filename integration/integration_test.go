package integration

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pairlink/pairlink/endpoint"
	tcptransport "github.com/pairlink/pairlink/transport/tcp"
)

// ------------------------------------------------------------
// Helpers
// ------------------------------------------------------------

// pushServer accepts connections on a loopback port and hands each one to
// handler together with its accept ordinal (1 for the first connection).
func pushServer(t *testing.T, handler func(conn *tcptransport.Conn, accepted int)) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		accepted := 0
		for {
			nc, err := ln.Accept()
			if err != nil {
				return // listener closed
			}
			accepted++
			wg.Add(1)
			go func(nc net.Conn, n int) {
				defer wg.Done()
				conn := tcptransport.NewConn(nc)
				defer conn.Close()
				handler(conn, n)
			}(nc, accepted)
		}
	}()

	return ln.Addr().String(), func() {
		ln.Close()
		wg.Wait()
	}
}

// collector is a thread-safe observer.
type collector struct {
	mu       sync.Mutex
	payloads []string
	errs     []error
}

func (c *collector) observe(err error, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errs = append(c.errs, err)
		return
	}
	c.payloads = append(c.payloads, string(payload))
}

func (c *collector) got(payload string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.payloads {
		if p == payload {
			return true
		}
	}
	return false
}

func (c *collector) sawErr(sentinel error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.errs {
		if errors.Is(e, sentinel) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func fastOpts() endpoint.Options {
	return endpoint.Options{
		RecvTimeout: 200 * time.Millisecond,
		SendTimeout: time.Second,
		Retry:       endpoint.RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond},
	}
}

// ------------------------------------------------------------
// Tests
// ------------------------------------------------------------

// TestDeliveryAcrossReconnect runs the full self-healing story over real
// sockets: the server pushes a message, drops the connection, the endpoint
// reconnects silently and the same observer keeps receiving.
func TestDeliveryAcrossReconnect(t *testing.T) {
	hold := make(chan struct{})
	addr, stop := pushServer(t, func(conn *tcptransport.Conn, accepted int) {
		switch accepted {
		case 1:
			conn.Send([]byte("before the drop"), time.Second)
			// returning closes the connection — a remote failure for the client
		default:
			conn.Send([]byte("after the drop"), time.Second)
			<-hold
		}
	})
	defer stop()
	defer close(hold)

	obs := &collector{}
	r := endpoint.Receive(tcptransport.Dialer{}, addr, obs.observe, fastOpts())
	defer r.Dispose()

	waitFor(t, 2*time.Second, func() bool { return obs.got("before the drop") },
		"first message never arrived")
	waitFor(t, 2*time.Second, func() bool { return obs.got("after the drop") },
		"message after reconnect never arrived")

	if !obs.sawErr(endpoint.ErrConnectionLost) {
		t.Error("expected a connection-lost notification between the deliveries")
	}
	if !r.IsConnected() {
		t.Error("expected IsConnected() true after the silent reconnect")
	}
	if r.IsDisposed() {
		t.Error("a healed endpoint must not be disposed")
	}
	if r.RetryCount() != 0 {
		t.Errorf("retry count must be 0 after a successful reconnect, got %d", r.RetryCount())
	}
}

// TestExhaustionWhenPeerStaysDown connects once, then the whole server goes
// away: the endpoint must burn its budget and land in the terminal state.
func TestExhaustionWhenPeerStaysDown(t *testing.T) {
	addr, stop := pushServer(t, func(conn *tcptransport.Conn, accepted int) {
		conn.Send([]byte("only message"), time.Second)
	})

	obs := &collector{}
	r := endpoint.Receive(tcptransport.Dialer{ConnectTimeout: time.Second}, addr, obs.observe, fastOpts())

	waitFor(t, 2*time.Second, func() bool { return obs.got("only message") },
		"first message never arrived")

	// take the listener down so every reconnect attempt is refused
	stop()

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint never reached the terminal state")
	}

	if !obs.sawErr(endpoint.ErrReconnectExhausted) {
		t.Error("expected a reconnection-exhausted notification")
	}
	if !r.IsDisposed() {
		t.Error("expected IsDisposed() true after exhaustion")
	}
	if r.IsConnected() {
		t.Error("expected IsConnected() false after exhaustion")
	}
}

// TestRequestEcho exercises the synchronous path against a live echo server.
func TestRequestEcho(t *testing.T) {
	addr, stop := pushServer(t, func(conn *tcptransport.Conn, accepted int) {
		payload, err := conn.Recv(time.Second)
		if err != nil {
			return
		}
		conn.Send(payload, time.Second)
	})
	defer stop()

	reply, err := endpoint.Request(tcptransport.Dialer{}, addr, []byte("echo me"), fastOpts())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(reply) != "echo me" {
		t.Errorf("expected 'echo me', got %q", reply)
	}
}

// TestRequestAgainstSilentPeer: a peer that accepts but never answers fails
// the call within roughly the receive timeout, and no retry happens.
func TestRequestAgainstSilentPeer(t *testing.T) {
	accepts := make(chan struct{}, 16)
	addr, stop := pushServer(t, func(conn *tcptransport.Conn, accepted int) {
		accepts <- struct{}{}
		conn.Recv(5 * time.Second) // swallow the request, say nothing
	})
	defer stop()

	opts := fastOpts()
	opts.RecvTimeout = 300 * time.Millisecond

	start := time.Now()
	_, err := endpoint.Request(tcptransport.Dialer{}, addr, []byte("anyone there?"), opts)
	elapsed := time.Since(start)

	if !errors.Is(err, endpoint.ErrRecvFailed) {
		t.Errorf("expected ErrRecvFailed, got %v", err)
	}
	if !errors.Is(err, endpoint.ErrTimedOut) {
		t.Errorf("expected the timeout to be distinguishable, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("request took %v, expected roughly the 300ms receive timeout", elapsed)
	}
	if len(accepts) != 1 {
		t.Errorf("expected exactly one connection (no retry), got %d", len(accepts))
	}
}

// TestProbe: a live listener probes true, a dead port probes false.
func TestProbe(t *testing.T) {
	addr, stop := pushServer(t, func(conn *tcptransport.Conn, accepted int) {
		conn.Recv(time.Second)
	})

	if !endpoint.Probe(tcptransport.Dialer{}, addr) {
		t.Error("expected Probe true while the server is up")
	}

	stop()

	if endpoint.Probe(tcptransport.Dialer{ConnectTimeout: time.Second}, addr) {
		t.Error("expected Probe false after the server went away")
	}
}
