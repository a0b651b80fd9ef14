package endpoint

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults for Options when the caller leaves fields zero.
const (
	DefaultRecvTimeout = 5 * time.Second
	DefaultSendTimeout = 5 * time.Second
)

// Options configures a Receiver or a Request call. The zero value is usable;
// every field has a default.
type Options struct {
	// RecvTimeout bounds each individual receive. For a Receiver an expiry
	// is not a failure — the loop surfaces it and issues the next receive.
	// For Request it fails the call.
	RecvTimeout time.Duration

	// SendTimeout bounds each send on the synchronous request path.
	SendTimeout time.Duration

	// Retry governs reconnection after a lost connection. Only the
	// receive path retries; Request never does.
	Retry RetryPolicy

	// Logger receives lifecycle events (connects, retries, disposal).
	// Nil keeps the endpoint silent.
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.RecvTimeout == 0 {
		o.RecvTimeout = DefaultRecvTimeout
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// logger returns the configured logger or a disabled one.
func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}
