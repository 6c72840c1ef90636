package mongo

import (
	"context"
	"fmt"

	bookingsrepository "medislot/internal/bookings/repository"
	identityrepository "medislot/internal/identity/repository"
	"medislot/internal/migrations/mongo/validators"
	slotsrepository "medislot/internal/slots/repository"
	"medislot/pkg/logger"
	"medislot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	SlotsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "start_at", Value: 1}},
			Options: options.Index().SetName("uniq_slot_start").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "is_booked", Value: 1}, {Key: "start_at", Value: 1}},
			Options: options.Index().SetName("slots_available_by_start"),
		},
	}

	BookingsIndexes = []mongo.IndexModel{
		{
			// At most one confirmed booking per slot. This index is the final
			// arbiter for concurrent reservations.
			Keys: bson.D{{Key: "slot_id", Value: 1}},
			Options: options.Index().
				SetName(bookingsrepository.ConfirmedSlotIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(model.BookingStatusConfirmed)}),
		},
		{
			Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("bookings_by_actor"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("bookings_newest_first"),
		},
	}

	UsersIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_user_email").SetUnique(true),
		},
	}
)

type CollectionDefinition struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections lists every collection in creation order.
func Collections() []CollectionDefinition {
	return []CollectionDefinition{
		{Name: slotsrepository.CollectionName, Indexes: SlotsIndexes, Validator: validators.SlotValidator},
		{Name: identityrepository.CollectionName, Indexes: UsersIndexes, Validator: validators.UserValidator},
		{Name: bookingsrepository.CollectionName, Indexes: BookingsIndexes, Validator: validators.BookingValidator},
	}
}

// RunMigration creates collections, validators and indexes. It is safe to run
// repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for _, def := range Collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
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

	log.Info("Collection already exists, updating validator", "collection", name)
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
	names, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", names)
	return nil
}
