package endpoint

import "sync/atomic"

// ConnectionState represents where a Receiver currently is in its lifecycle.
// Exactly one value is current at any instant.
type ConnectionState int32

const (
	StateConnecting   ConnectionState = iota // 0 - initial attempt in progress
	StateConnected                           // 1 - last established connection believed healthy
	StateDisconnected                        // 2 - connection failed, retry scheduled or in progress
	StateDisposed                            // 3 - terminal, no further transitions possible
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// stateMachine holds the current ConnectionState behind an atomic so that
// any number of goroutines can read it while the receive loop mutates it.
// A reader mid-transition sees either the pre- or post-transition value,
// never anything torn.
type stateMachine struct {
	state atomic.Int32
}

func newStateMachine() *stateMachine {
	m := &stateMachine{}
	m.state.Store(int32(StateConnecting))
	return m
}

// current returns the state as of this instant.
func (m *stateMachine) current() ConnectionState {
	return ConnectionState(m.state.Load())
}

// transition moves to next if the move is legal, reporting whether it
// happened. The CAS loop makes disposal win every race: once the state is
// Disposed no transition can move it anywhere else, no matter how the
// receive loop and a concurrent Dispose interleave.
func (m *stateMachine) transition(next ConnectionState) bool {
	for {
		cur := m.current()
		if !validTransition(cur, next) {
			return false
		}
		if m.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

// dispose forces the terminal state unconditionally. Unlike transition it
// never fails — any state may end in Disposed.
func (m *stateMachine) dispose() {
	m.state.Store(int32(StateDisposed))
}

// validTransition defines which state changes are legal.
// Disposed is terminal — nothing can come after it.
func validTransition(from, to ConnectionState) bool {
	allowed := map[ConnectionState][]ConnectionState{
		StateConnecting:   {StateConnected, StateDisconnected, StateDisposed},
		StateConnected:    {StateDisconnected, StateDisposed},
		StateDisconnected: {StateConnecting, StateDisposed},
		StateDisposed:     {}, // terminal, no exits
	}

	for _, valid := range allowed[from] {
		if to == valid {
			return true
		}
	}
	return false
}
