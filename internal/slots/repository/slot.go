package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "medislot/internal/slots/errors"
	"medislot/pkg/config"
	mongotx "medislot/pkg/db/mongo"
	"medislot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slots"

	duplicateKeyCode = 11000
)

type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	InsertMany(ctx context.Context, slots []*model.Slot) (int, error)
	FindByID(ctx context.Context, id string) (*model.Slot, error)
	FindAvailable(ctx context.Context, r model.TimeRange) ([]*model.Slot, error)
}

type slotDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	StartAt  time.Time          `bson:"start_at"`
	EndAt    time.Time          `bson:"end_at"`
	IsBooked bool               `bson:"is_booked"`
}

func (d *slotDocument) toModel() *model.Slot {
	return &model.Slot{
		ID:       d.ID.Hex(),
		StartAt:  d.StartAt.UTC(),
		EndAt:    d.EndAt.UTC(),
		IsBooked: d.IsBooked,
	}
}

type mongoSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func newDocument(slot *model.Slot) slotDocument {
	return slotDocument{
		StartAt:  slot.StartAt.UTC().Truncate(time.Millisecond),
		EndAt:    slot.EndAt.UTC().Truncate(time.Millisecond),
		IsBooked: false,
	}
}

// Create inserts a new, unbooked slot.
func (r *mongoSlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	doc := newDocument(slot)
	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return slotserrors.ErrDuplicateStart
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		slot.ID = oid.Hex()
	}
	slot.StartAt, slot.EndAt, slot.IsBooked = doc.StartAt, doc.EndAt, false
	return nil
}

// InsertMany bulk inserts slots, skipping any whose start time already exists.
// It returns the number of slots actually inserted.
func (r *mongoSlotRepository) InsertMany(ctx context.Context, slots []*model.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	docs := make([]any, 0, len(slots))
	for _, s := range slots {
		docs = append(docs, newDocument(s))
	}

	result, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) && onlyDuplicates(bulkErr) {
			return countInserted(result), nil
		}
		return countInserted(result), fmt.Errorf("failed to insert slots: %w", err)
	}
	return countInserted(result), nil
}

func onlyDuplicates(e mongo.BulkWriteException) bool {
	if e.WriteConcernError != nil {
		return false
	}
	for _, we := range e.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

func countInserted(result *mongo.InsertManyResult) int {
	if result == nil {
		return 0
	}
	return len(result.InsertedIDs)
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	var doc slotDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, slotserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return doc.toModel(), nil
}

func (r *mongoSlotRepository) FindAvailable(ctx context.Context, tr model.TimeRange) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"is_booked": false,
		"start_at": bson.M{
			"$gte": tr.From,
			"$lte": tr.To,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []slotDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}

	slots := make([]*model.Slot, 0, len(docs))
	for i := range docs {
		slots = append(slots, docs[i].toModel())
	}
	return slots, nil
}
