package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/models"
)

// SignalRepository keeps signaling messages in Redis so the retention
// window is enforced by key TTLs instead of a reaper. Offer and answer
// live under one key per (transfer, type, author) and a re-post simply
// overwrites it (latest wins); ICE candidates accumulate in a list per
// (transfer, author).
type SignalRepository struct{ rdb *redis.Client }

func NewSignalRepository(rdb *redis.Client) *SignalRepository {
	return &SignalRepository{rdb: rdb}
}

func ConnectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func signalKey(transferID uuid.UUID, st models.SignalType, senderID uuid.UUID) string {
	return fmt.Sprintf("signal:%s:%s:%s", transferID, st, senderID)
}

func candidateKey(transferID, senderID uuid.UUID) string {
	return fmt.Sprintf("signal:%s:ice:%s", transferID, senderID)
}

func (r *SignalRepository) Put(ctx context.Context, msg *models.SignalMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ttl := time.Until(msg.ExpiresAt)
	if ttl <= 0 {
		return nil // already past its window, nothing to store
	}

	if msg.Type == models.SignalCandidate {
		key := candidateKey(msg.TransferID, msg.SenderID)
		pipe := r.rdb.TxPipeline()
		pipe.RPush(ctx, key, raw)
		// The list TTL tracks the newest entry; older entries carry their
		// own ExpiresAt and are filtered on read.
		pipe.Expire(ctx, key, ttl)
		_, err := pipe.Exec(ctx)
		return err
	}
	return r.rdb.Set(ctx, signalKey(msg.TransferID, msg.Type, msg.SenderID), raw, ttl).Err()
}

func (r *SignalRepository) Latest(ctx context.Context, transferID uuid.UUID, st models.SignalType, senderID uuid.UUID) (*models.SignalMessage, error) {
	raw, err := r.rdb.Get(ctx, signalKey(transferID, st, senderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msg models.SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *SignalRepository) Candidates(ctx context.Context, transferID, senderID uuid.UUID) ([]models.SignalMessage, error) {
	raws, err := r.rdb.LRange(ctx, candidateKey(transferID, senderID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]models.SignalMessage, 0, len(raws))
	for _, raw := range raws {
		var msg models.SignalMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, err
		}
		if msg.Expired(now) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *SignalRepository) Purge(ctx context.Context, transferID uuid.UUID) error {
	iter := r.rdb.Scan(ctx, 0, fmt.Sprintf("signal:%s:*", transferID), 0).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
