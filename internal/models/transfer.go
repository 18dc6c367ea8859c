package models

import (
	"time"

	"github.com/google/uuid"
)

type TransferMethod string

const (
	MethodP2P   TransferMethod = "P2P"
	MethodCloud TransferMethod = "CLOUD"
)

type TransferStatus string

const (
	StatusPending      TransferStatus = "PENDING"
	StatusAccepted     TransferStatus = "ACCEPTED"
	StatusTransferring TransferStatus = "TRANSFERRING"
	StatusCompleted    TransferStatus = "COMPLETED"
	StatusFailed       TransferStatus = "FAILED"
	StatusCancelled    TransferStatus = "CANCELLED"
)

// Terminal reports whether no further status change is allowed from s.
func (s TransferStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Transfer is one attempt to move a file from a sender to a recipient,
// either over a negotiated peer connection (P2P) or through object
// storage (CLOUD).
type Transfer struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	FileName    string         `json:"fileName" gorm:"not null"`
	FileSize    int64          `json:"fileSize" gorm:"not null"`
	FileType    string         `json:"fileType" gorm:"not null"`
	SenderID    uuid.UUID      `json:"senderId" gorm:"type:uuid;index;not null"`
	RecipientID uuid.UUID      `json:"recipientId" gorm:"type:uuid;index;not null"`
	Method      TransferMethod `json:"method" gorm:"not null"`
	Status      TransferStatus `json:"status" gorm:"not null;default:'PENDING'"`
	Progress    float64        `json:"progress" gorm:"default:0"`
	StorageKey  string         `json:"-"` // object key, CLOUD transfers only
	CreatedAt   time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
	ExpiresAt   time.Time      `json:"expiresAt" gorm:"not null"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Peer returns the participant on the other side of the transfer from
// userID. The caller must already know userID is a participant.
func (t *Transfer) Peer(userID uuid.UUID) uuid.UUID {
	if userID == t.SenderID {
		return t.RecipientID
	}
	return t.SenderID
}
