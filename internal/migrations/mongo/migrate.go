package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"waitgate/internal/migrations/mongo/validators"
	"waitgate/pkg/config"
	"waitgate/pkg/logger"
)

// Collection is one collection the service expects, with its validator and
// indexes.
type Collection struct {
	Name      string
	Validator bson.M
	Indexes   []mongo.IndexModel
}

var (
	WaitlistsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "begins_at", Value: 1}, {Key: "ends_at", Value: 1}}},
	}

	WaitlistUsersIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "waitlist_id", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "status", Value: 1}}},
	}

	// The TTL monitor removes abandoned locks; Acquire also reclaims expired
	// locks that the monitor has not reached yet.
	WaitlistLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
)

// Collections lists the collections for the configured model names.
func Collections(policy *config.Policy) []Collection {
	return []Collection{
		{
			Name:      policy.Schema.Waitlist.ModelName,
			Validator: validators.WaitlistValidator,
			Indexes:   WaitlistsIndexes,
		},
		{
			Name:      policy.Schema.WaitlistUser.ModelName,
			Validator: validators.WaitlistUserValidator,
			Indexes:   WaitlistUsersIndexes,
		},
		{
			Name:      config.DefaultWaitlistLockModelName,
			Validator: validators.WaitlistLockValidator,
			Indexes:   WaitlistLocksIndexes,
		},
	}
}

func RunMigration(ctx context.Context, db *mongo.Database, collections []Collection, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for _, c := range collections {
		if err := ensureCollection(ctx, db, c.Name, c.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", c.Name, err)
		}
		if err := ensureIndexes(ctx, db, c.Name, c.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", c.Name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
