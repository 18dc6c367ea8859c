package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beamdrop/beamdrop/internal/models"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// TransferRepository backs the transfer record store with Postgres. Status
// and progress writes are guarded WHERE clauses so a stale writer loses
// instead of clobbering a concurrent change.
type TransferRepository struct{ db *gorm.DB }

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, t *models.Transfer) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransferRepository) Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	var t models.Transfer
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: transfer %s", transfer.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransferRepository) PendingFor(ctx context.Context, userID uuid.UUID) ([]models.Transfer, error) {
	var out []models.Transfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND (sender_id = ? OR recipient_id = ?)", models.StatusPending, userID, userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *TransferRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to models.TransferStatus, completedAt *time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "completed_at": completedAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TransferRepository) SetProgress(ctx context.Context, id uuid.UUID, from models.TransferStatus, progress float64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ? AND status = ? AND progress <= ?", id, from, progress).
		Update("progress", progress)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TransferRepository) FailExpired(ctx context.Context, now time.Time) ([]models.Transfer, error) {
	var stale []models.Transfer
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?",
			[]models.TransferStatus{models.StatusPending, models.StatusAccepted}, now).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}

	// Flip each one individually so a transfer that moved in the meantime
	// is skipped rather than overwritten.
	failed := stale[:0]
	for _, t := range stale {
		ok, err := r.SetStatus(ctx, t.ID, t.Status, models.StatusFailed, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			failed = append(failed, t)
		}
	}
	return failed, nil
}

func (r *TransferRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Transfer{}, "id = ?", id).Error
}
