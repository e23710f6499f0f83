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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type WaitlistRepository interface {
	Create(ctx context.Context, w *model.Waitlist) error
	FindByID(ctx context.Context, id string) (*model.Waitlist, error)
	CountOverlapping(ctx context.Context, beginsAt time.Time, endsAt *time.Time) (int64, error)
	FindActive(ctx context.Context, now time.Time) ([]*model.Waitlist, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoWaitlistRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoWaitlistRepository(cfg *config.Config) WaitlistRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWaitlistRepository{
		cfg:        cfg,
		collection: db.Collection(cfg.Policy.Schema.Waitlist.ModelName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoWaitlistRepository) Create(ctx context.Context, w *model.Waitlist) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, w); err != nil {
		if mongotx.IsWriteConflict(err) {
			return fmt.Errorf("%w: %v", waitlisterrors.ErrWriteConflict, err)
		}
		return fmt.Errorf("failed to create waitlist: %w", err)
	}
	return nil
}

func (r *mongoWaitlistRepository) FindByID(ctx context.Context, id string) (*model.Waitlist, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var w model.Waitlist
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", waitlisterrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find waitlist: %w", err)
	}
	return &w, nil
}

// CountOverlapping counts waitlists whose period intersects
// [beginsAt, endsAt]. A nil endsAt is open-ended, as is a stored waitlist
// without ends_at.
func (r *mongoWaitlistRepository) CountOverlapping(ctx context.Context, beginsAt time.Time, endsAt *time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, overlapFilter(beginsAt, endsAt))
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping waitlists: %w", err)
	}
	return count, nil
}

func overlapFilter(beginsAt time.Time, endsAt *time.Time) bson.M {
	clauses := bson.A{
		bson.M{"$or": bson.A{
			bson.M{"ends_at": nil},
			bson.M{"ends_at": bson.M{"$gte": beginsAt}},
		}},
	}
	if endsAt != nil {
		clauses = append(clauses, bson.M{"begins_at": bson.M{"$lte": *endsAt}})
	}
	return bson.M{"$and": clauses}
}

// FindActive returns the waitlists open at now, earliest start first.
func (r *mongoWaitlistRepository) FindActive(ctx context.Context, now time.Time) ([]*model.Waitlist, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "begins_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, activeFilter(now), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query active waitlists: %w", err)
	}
	defer cursor.Close(ctx)

	var waitlists []*model.Waitlist
	if err := cursor.All(ctx, &waitlists); err != nil {
		return nil, fmt.Errorf("failed to decode active waitlists: %w", err)
	}
	return waitlists, nil
}

func activeFilter(now time.Time) bson.M {
	return bson.M{
		"begins_at": bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"ends_at": nil},
			bson.M{"ends_at": bson.M{"$gte": now}},
		},
	}
}
