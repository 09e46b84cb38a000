// Package client implements the client controller: the local process that
// drives an external ssh binary through a pseudo-terminal, performs the
// bootstrap handshake, relays bytes during a session, and reconnects on
// drop.
package client

// State is a phase of the client controller's per-attempt state machine.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateWaitingPrompt
	StateInstalling
	StateLaunchingServer
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDialing:
		return "DIALING"
	case StateWaitingPrompt:
		return "WAITING_PROMPT"
	case StateInstalling:
		return "INSTALLING"
	case StateLaunchingServer:
		return "LAUNCHING_SERVER"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}
