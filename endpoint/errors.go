package endpoint

import "errors"

var (
	// ErrConnectFailed is delivered or returned when opening a connection
	// to the peer fails.
	ErrConnectFailed = errors.New("connect failed")

	// ErrSendFailed is returned by Request when the request could not be
	// written within the send timeout.
	ErrSendFailed = errors.New("send failed")

	// ErrRecvFailed is returned by Request when no reply arrived within the
	// receive timeout, or the connection broke while waiting.
	ErrRecvFailed = errors.New("recv failed")

	// ErrTimedOut marks a failure as a timeout. It is always wrapped into
	// another error so callers can both ask "what failed" and "was it a
	// timeout" with errors.Is.
	ErrTimedOut = errors.New("timed out")

	// ErrConnectionLost is delivered to the observer when an established
	// connection breaks. A reconnection episode starts right after.
	ErrConnectionLost = errors.New("connection lost")

	// ErrReconnectExhausted is delivered exactly once when the retry budget
	// is consumed without a successful reconnect. The Receiver is disposed
	// afterward — this is the one observer-delivered error that is terminal.
	ErrReconnectExhausted = errors.New("reconnection exhausted")

	// ErrAlreadyDisposed is returned by operations invoked on a Receiver
	// after disposal. Dispose itself never returns it — redundant disposal
	// is a silent no-op.
	ErrAlreadyDisposed = errors.New("already disposed")
)
