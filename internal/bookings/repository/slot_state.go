package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medislot/internal/bookings/errors"
	slotsrepository "medislot/internal/slots/repository"
	"medislot/pkg/config"
	mongotx "medislot/pkg/db/mongo"
	"medislot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// SlotStateRepository holds the only writes to a slot's is_booked flag. Every
// method is meant to run inside the reservation unit of work.
type SlotStateRepository interface {
	FindSlot(ctx context.Context, id string) (*model.Slot, error)
	MarkBooked(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

type slotStateDocument struct {
	ID       primitive.ObjectID `bson:"_id"`
	StartAt  time.Time          `bson:"start_at"`
	EndAt    time.Time          `bson:"end_at"`
	IsBooked bool               `bson:"is_booked"`
}

type mongoSlotStateRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotStateRepository(cfg *config.Config) SlotStateRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotStateRepository{
		cfg:        cfg,
		collection: db.Collection(slotsrepository.CollectionName),
	}
}

func (r *mongoSlotStateRepository) FindSlot(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrSlotNotFound, id)
	}

	var doc slotStateDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &model.Slot{
		ID:       doc.ID.Hex(),
		StartAt:  doc.StartAt.UTC(),
		EndAt:    doc.EndAt.UTC(),
		IsBooked: doc.IsBooked,
	}, nil
}

// MarkBooked flips is_booked only if it is still false.
func (r *mongoSlotStateRepository) MarkBooked(ctx context.Context, id string) error {
	matched, err := r.setBooked(ctx, id, true)
	if err != nil {
		return err
	}
	if matched == 0 {
		return bookingserrors.ErrSlotTaken
	}
	return nil
}

// Release clears is_booked only if it is currently set.
func (r *mongoSlotStateRepository) Release(ctx context.Context, id string) error {
	matched, err := r.setBooked(ctx, id, false)
	if err != nil {
		return err
	}
	if matched == 0 {
		return bookingserrors.ErrSlotStateDrift
	}
	return nil
}

func (r *mongoSlotStateRepository) setBooked(ctx context.Context, id string, booked bool) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrSlotNotFound, id)
	}

	filter := bson.M{"_id": objectID, "is_booked": !booked}
	update := bson.M{"$set": bson.M{"is_booked": booked}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update slot state: %w", err)
	}
	return result.MatchedCount, nil
}
