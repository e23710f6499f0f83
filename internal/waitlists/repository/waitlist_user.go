package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	waitlisterrors "waitgate/internal/waitlists/errors"
	"waitgate/pkg/config"
	mongotx "waitgate/pkg/db/mongo"
	"waitgate/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type WaitlistUserRepository interface {
	Create(ctx context.Context, u *model.WaitlistUser) error
	FindByWaitlistAndEmail(ctx context.Context, waitlistID, email string) (*model.WaitlistUser, error)
	CountByWaitlist(ctx context.Context, waitlistID string) (int64, error)
	MarkLeft(ctx context.Context, id string, status model.WaitlistUserStatus, leftAt time.Time) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoWaitlistUserRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoWaitlistUserRepository(cfg *config.Config) WaitlistUserRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWaitlistUserRepository{
		cfg:        cfg,
		collection: db.Collection(cfg.Policy.Schema.WaitlistUser.ModelName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// Create relies on the unique (waitlist_id, email) index to reject a second
// join with the same email.
func (r *mongoWaitlistUserRepository) Create(ctx context.Context, u *model.WaitlistUser) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", waitlisterrors.ErrDuplicateUser, u.Email)
		}
		return fmt.Errorf("failed to create waitlist user: %w", err)
	}
	return nil
}

func (r *mongoWaitlistUserRepository) FindByWaitlistAndEmail(ctx context.Context, waitlistID, email string) (*model.WaitlistUser, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var u model.WaitlistUser
	err := r.collection.FindOne(ctx, bson.M{"waitlist_id": waitlistID, "email": email}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", waitlisterrors.ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("failed to find waitlist user: %w", err)
	}
	return &u, nil
}

func (r *mongoWaitlistUserRepository) CountByWaitlist(ctx context.Context, waitlistID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"waitlist_id": waitlistID})
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist users: %w", err)
	}
	return count, nil
}

// MarkLeft records the outcome for a pending user. The update only matches
// while left_at is unset, so a user leaves at most once.
func (r *mongoWaitlistUserRepository) MarkLeft(ctx context.Context, id string, status model.WaitlistUserStatus, leftAt time.Time) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "left_at": nil}
	update := bson.M{"$set": bson.M{"status": status, "left_at": leftAt}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongotx.IsWriteConflict(err) {
			return fmt.Errorf("%w: %v", waitlisterrors.ErrWriteConflict, err)
		}
		return fmt.Errorf("failed to update waitlist user: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", waitlisterrors.ErrAlreadyLeft, id)
	}
	return nil
}
