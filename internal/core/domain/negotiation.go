package domain

// NegotiationState tracks one peer link's progress from offer to a connected
// media session. States are entered at most once per session; only Failed is
// reachable after Connected.
type NegotiationState int

const (
	NegotiationIdle NegotiationState = iota
	NegotiationLocalDescriptionCreated
	NegotiationAwaitingRemoteDescription
	NegotiationRemoteDescriptionSet
	NegotiationCandidateExchange
	NegotiationConnected
	NegotiationFailed
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationIdle:
		return "idle"
	case NegotiationLocalDescriptionCreated:
		return "local_description_created"
	case NegotiationAwaitingRemoteDescription:
		return "awaiting_remote_description"
	case NegotiationRemoteDescriptionSet:
		return "remote_description_set"
	case NegotiationCandidateExchange:
		return "candidate_exchange"
	case NegotiationConnected:
		return "connected"
	case NegotiationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further negotiation progress is possible.
func (s NegotiationState) Terminal() bool {
	return s == NegotiationFailed
}

// SessionRole distinguishes the side that created the offer from the side
// that answered it.
type SessionRole string

const (
	RoleInitiator SessionRole = "initiator"
	RoleResponder SessionRole = "responder"
)

// TransportState is the connectivity status reported by the underlying
// peer-to-peer transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnStatus is the connectivity summary a session controller exposes to the
// presentation layer.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusError        ConnStatus = "error"
)
