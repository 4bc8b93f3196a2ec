package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomID validates a caller-supplied room identifier.
func ValidateRoomID(roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room id is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("room id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateParticipantID validates a relay-assigned participant identifier.
func ValidateParticipantID(participantID string) error {
	if participantID == "" {
		return fmt.Errorf("participant id is required")
	}
	if len(participantID) > 100 {
		return fmt.Errorf("participant id is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(participantID) {
		return fmt.Errorf("participant id contains invalid characters")
	}
	return nil
}

// ValidateSessionDescription performs a shape check on an SDP body carried
// inside a session description payload. The relay forwards descriptions
// verbatim, so this only guards against obviously broken input.
func ValidateSessionDescription(sdp string) error {
	if sdp == "" {
		return fmt.Errorf("session description cannot be empty")
	}
	if len(sdp) < 2 || sdp[:2] != "v=" {
		return fmt.Errorf("invalid session description: must start with 'v='")
	}
	for _, field := range []string{"v=", "o=", "s="} {
		if !strings.Contains(sdp, field) {
			return fmt.Errorf("invalid session description: missing required field '%s'", field)
		}
	}
	return nil
}
