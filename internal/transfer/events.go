package transfer

import (
	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/models"
)

// Event names pushed over the real-time channel. Delivery is best-effort;
// anything that matters is also recoverable through the REST fetch path.
const (
	EventNewTransfer      = "new-transfer"
	EventSignalAvailable  = "signal-available"
	EventStatusChanged    = "status-changed"
	EventProgress         = "progress"
	EventPeerDisconnected = "peer-disconnected"
)

type NewTransferEvent struct {
	TransferID uuid.UUID `json:"transferId"`
	Sender     string    `json:"sender"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
}

// SignalAvailableEvent deliberately omits the payload; the recipient
// fetches it over REST so the push channel stays lightweight.
type SignalAvailableEvent struct {
	TransferID uuid.UUID         `json:"transferId"`
	Type       models.SignalType `json:"type"`
	MessageID  uuid.UUID         `json:"messageId"`
}

type StatusChangedEvent struct {
	TransferID uuid.UUID             `json:"transferId"`
	Status     models.TransferStatus `json:"status"`
}

type ProgressEvent struct {
	TransferID uuid.UUID `json:"transferId"`
	Progress   float64   `json:"progress"`
}

type PeerDisconnectedEvent struct {
	TransferID uuid.UUID `json:"transferId"`
}

// Notifier fans events out to live connections. Implementations must not
// block the caller; events for offline users are dropped.
type Notifier interface {
	NotifyUser(userID uuid.UUID, event string, data any)
	NotifyTransfer(transferID uuid.UUID, event string, data any)
}

// NopNotifier drops every event. Used when the hub is not wired, and in
// tests that do not care about notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyUser(uuid.UUID, string, any)     {}
func (NopNotifier) NotifyTransfer(uuid.UUID, string, any) {}
