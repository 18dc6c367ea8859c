package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/models"
)

// TransferStore persists transfer records. Get returns an error wrapping
// ErrNotFound for unknown ids. The compare-and-set methods are the only
// way status and progress change after creation, so two racing writers
// cannot both win.
type TransferStore interface {
	Create(ctx context.Context, t *models.Transfer) error
	Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	// PendingFor lists PENDING transfers where userID is either participant,
	// newest first.
	PendingFor(ctx context.Context, userID uuid.UUID) ([]models.Transfer, error)
	// SetStatus updates status only if the stored status still equals from.
	// Returns false without error when the record changed underneath.
	SetStatus(ctx context.Context, id uuid.UUID, from, to models.TransferStatus, completedAt *time.Time) (bool, error)
	// SetProgress updates progress only if the stored status still equals
	// from and the stored progress does not exceed progress.
	SetProgress(ctx context.Context, id uuid.UUID, from models.TransferStatus, progress float64) (bool, error)
	// FailExpired marks PENDING and ACCEPTED transfers past their expiry as
	// FAILED, returning the affected ids.
	FailExpired(ctx context.Context, now time.Time) ([]models.Transfer, error)
	// Delete removes the record. Callers cascade signal deletion first.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SignalStore persists signaling messages with a bounded retention window.
// Offer and answer writes supersede the previous message of the same type
// from the same sender; candidates accumulate. Reads never return expired
// messages.
type SignalStore interface {
	Put(ctx context.Context, msg *models.SignalMessage) error
	// Latest returns the most recent live offer/answer of type st authored
	// by senderID on the transfer, or nil when none exists.
	Latest(ctx context.Context, transferID uuid.UUID, st models.SignalType, senderID uuid.UUID) (*models.SignalMessage, error)
	// Candidates returns all live candidates authored by senderID, ordered
	// by creation time ascending.
	Candidates(ctx context.Context, transferID, senderID uuid.UUID) ([]models.SignalMessage, error)
	// Purge drops every signal scoped to the transfer.
	Purge(ctx context.Context, transferID uuid.UUID) error
}

// UserStore resolves registered identities.
type UserStore interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// BlobStore is the object-storage collaborator backing CLOUD transfers.
type BlobStore interface {
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}
