package domain

import "errors"

var (
	ErrRelayUnreachable   = errors.New("relay unreachable")
	ErrSessionNotFound    = errors.New("negotiation session not found")
	ErrSessionTerminal    = errors.New("negotiation session is terminal")
	ErrMediaUnavailable   = errors.New("media source unavailable")
	ErrNegotiationFailed  = errors.New("negotiation failed")
	ErrMalformedMessage   = errors.New("malformed signaling message")
	ErrControllerClosed   = errors.New("session controller closed")
	ErrInvalidTransition  = errors.New("invalid negotiation state transition")
	ErrParticipantUnknown = errors.New("participant not connected")
)
