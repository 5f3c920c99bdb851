package twitch

// State — состояние IRC-сессии. Принадлежит горутине Session.Run.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateNegotiatingCapabilities
	StateJoining
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateNegotiatingCapabilities:
		return "negotiating_capabilities"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
