package nat

// ConnState is a NAT TCP connection's place in the (simplified, NAT-level,
// not full RFC 793) state machine. The mapping's connection list holds one
// of these per external peer.
type ConnState uint8

const (
	StateSynSent ConnState = iota
	StateSynRcvd
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
)

func (s ConnState) String() string {
	switch s {
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRcvd:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	default:
		return "UNKNOWN"
	}
}

// Direction is which side of the NAT boundary a packet crossed from.
type Direction uint8

const (
	DirInternalToExternal Direction = iota
	DirExternalToInternal
)

// TCPFlags is the subset of TCP control bits the FSM reads. SYN is accepted
// for completeness of the 8-combination truth table the spec requires
// (Step is exhaustively tested over all of them), but — matching the
// original implementation — every transition rule requires SYN clear: a
// SYN observed on an already-established connection (a retransmit, or a
// simultaneous-open oddity) leaves the state unchanged rather than
// reinterpreting it as a new handshake. A brand new connection is created by
// NatTable.Insert, not by Step.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
}

// Step is the centralized TCP FSM transition function: given a connection's
// current state, the direction the packet crossed, and its flags, it
// returns the new state. Unmatched (direction, flags, state) tuples return
// state unchanged — the caller is responsible for deciding whether that
// counts as a "change" worth bumping last_updated.
//
// Grounded on the six transition rules scattered across
// sr_nat_lookup_internal/sr_nat_lookup_external in the original source,
// centralized here per the redesign note in the spec.
func Step(state ConnState, dir Direction, flags TCPFlags) ConnState {
	if flags.SYN {
		return state
	}
	pureACK := flags.ACK && !flags.FIN
	pureFIN := !flags.ACK && flags.FIN
	finACK := flags.ACK && flags.FIN

	switch dir {
	case DirInternalToExternal:
		switch {
		case pureACK:
			switch state {
			case StateSynSent:
				return StateEstablished
			case StateFinWait1:
				return StateClosing
			}
		case pureFIN:
			switch state {
			case StateSynRcvd, StateEstablished:
				return StateFinWait1
			case StateCloseWait:
				return StateLastAck
			}
		case finACK:
			if state == StateEstablished {
				return StateCloseWait
			}
		}
	case DirExternalToInternal:
		switch {
		case pureACK:
			if state == StateSynRcvd {
				return StateEstablished
			}
		case pureFIN:
			if state == StateEstablished {
				return StateCloseWait
			}
		case finACK:
			if state == StateFinWait1 {
				return StateFinWait2
			}
		}
	}
	return state
}

// IsTransitory reports whether s is one of the short-lived, handshake/
// teardown-in-progress states the reaper expires faster than established
// connections.
func IsTransitory(s ConnState) bool {
	switch s {
	case StateSynSent, StateSynRcvd, StateClosing, StateLastAck:
		return true
	default:
		return false
	}
}
