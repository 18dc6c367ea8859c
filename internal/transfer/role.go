package transfer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/models"
)

// Role is a caller's position in a transfer. It is always derived from the
// transfer record, never stored, so it cannot drift from the record.
type Role string

const (
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
)

// ParticipantRole returns the role callerID holds in t, or ErrForbidden if
// callerID is neither participant.
func ParticipantRole(t *models.Transfer, callerID uuid.UUID) (Role, error) {
	switch callerID {
	case t.SenderID:
		return RoleSender, nil
	case t.RecipientID:
		return RoleRecipient, nil
	}
	return "", fmt.Errorf("%w: not a participant of transfer %s", ErrForbidden, t.ID)
}
