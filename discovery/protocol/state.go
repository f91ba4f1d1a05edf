package protocol

// LifecycleState is one of STOPPED/STARTING/STARTED/STOPPING, as used
// by every Server Component in the host (spec.md §3).
type LifecycleState int

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateStarted
	StateStopping
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateStarted:
		return "Started"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// SecureChannelState tracks the outbound client's channel, reported
// by the transport on every state-callback invocation.
type SecureChannelState int

const (
	ChannelClosed SecureChannelState = iota
	ChannelConnecting
	ChannelOpen
)

func (s SecureChannelState) String() string {
	switch s {
	case ChannelClosed:
		return "Closed"
	case ChannelConnecting:
		return "Connecting"
	case ChannelOpen:
		return "Open"
	default:
		return "Unknown"
	}
}

// MessageSecurityMode mirrors the channel's negotiated security mode.
// A channel can reach Open with None or Sign during the endpoint
// discovery handshake before the encrypted channel is (re)opened.
type MessageSecurityMode int

const (
	SecurityModeInvalid MessageSecurityMode = iota
	SecurityModeNone
	SecurityModeSign
	SecurityModeSignAndEncrypt
)

func (m MessageSecurityMode) String() string {
	switch m {
	case SecurityModeNone:
		return "None"
	case SecurityModeSign:
		return "Sign"
	case SecurityModeSignAndEncrypt:
		return "SignAndEncrypt"
	default:
		return "Invalid"
	}
}
