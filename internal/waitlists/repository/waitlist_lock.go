package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	waitlisterrors "waitgate/internal/waitlists/errors"
	"waitgate/pkg/config"
	"waitgate/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// WaitlistLockRepository manages advisory lock documents.
type WaitlistLockRepository interface {
	Acquire(ctx context.Context, lock *model.WaitlistLock) error
	Release(ctx context.Context, lock *model.WaitlistLock) error
}

type mongoWaitlistLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoWaitlistLockRepository(cfg *config.Config) WaitlistLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWaitlistLockRepository{
		cfg:        cfg,
		collection: db.Collection(config.DefaultWaitlistLockModelName),
	}
}

// Acquire inserts the lock document. When a lock with the same id exists and
// has expired it is reclaimed once; a live lock yields ErrLockHeld.
func (r *mongoWaitlistLockRepository) Acquire(ctx context.Context, lock *model.WaitlistLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lock.CreatedAt = time.Now().UTC()

	err := r.insert(ctx, lock)
	if !errors.Is(err, waitlisterrors.ErrLockHeld) {
		return err
	}

	// TTL monitors run once a minute, so stale locks can outlive expires_at.
	var held model.WaitlistLock
	if err := r.collection.FindOne(ctx, bson.M{"_id": lock.ID}).Decode(&held); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return r.insert(ctx, lock)
		}
		return fmt.Errorf("failed to inspect waitlist lock: %w", err)
	}
	if !held.Expired(lock.CreatedAt) {
		return fmt.Errorf("%w: %s held by %s", waitlisterrors.ErrLockHeld, lock.ID, held.Owner)
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": held.ID, "owner": held.Owner, "expires_at": held.ExpiresAt})
	if err != nil {
		return fmt.Errorf("failed to reclaim waitlist lock: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", waitlisterrors.ErrLockHeld, lock.ID)
	}
	return r.insert(ctx, lock)
}

func (r *mongoWaitlistLockRepository) insert(ctx context.Context, lock *model.WaitlistLock) error {
	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", waitlisterrors.ErrLockHeld, lock.ID)
		}
		return fmt.Errorf("failed to acquire waitlist lock: %w", err)
	}
	return nil
}

// Release deletes the lock only if it is still owned by the caller.
func (r *mongoWaitlistLockRepository) Release(ctx context.Context, lock *model.WaitlistLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": lock.ID, "owner": lock.Owner}); err != nil {
		return fmt.Errorf("failed to release waitlist lock: %w", err)
	}
	return nil
}
