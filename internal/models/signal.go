package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "ice-candidate"
)

// Valid reports whether t is one of the recognized signal kinds.
func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// SignalMessage is one unit of connection-setup data relayed between the
// two participants of a transfer. SDP carries the session description for
// offer/answer; Candidate carries a single ICE candidate. Both are kept
// opaque, the server never parses them.
type SignalMessage struct {
	ID          uuid.UUID       `json:"id"`
	TransferID  uuid.UUID       `json:"transferId"`
	SenderID    uuid.UUID       `json:"senderId"`
	RecipientID uuid.UUID       `json:"recipientId"`
	Type        SignalType      `json:"type"`
	SDP         json.RawMessage `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

// Expired reports whether the message is past its retention window at now.
func (m *SignalMessage) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
