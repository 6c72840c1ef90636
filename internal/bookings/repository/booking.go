package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medislot/internal/bookings/errors"
	identityrepository "medislot/internal/identity/repository"
	slotsrepository "medislot/internal/slots/repository"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	mongotx "medislot/pkg/db/mongo"
	"medislot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"

	// ConfirmedSlotIndex is the partial unique index that admits at most one
	// confirmed booking per slot.
	ConfirmedSlotIndex = "uniq_confirmed_slot"
)

type BookingRepository interface {
	Insert(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindConfirmedBySlot(ctx context.Context, slotID string) (*model.Booking, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	ListForActor(ctx context.Context, actorID string) ([]*model.BookingView, error)
	ListAll(ctx context.Context) ([]*model.BookingView, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type bookingDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	SlotID      primitive.ObjectID `bson:"slot_id"`
	ActorID     primitive.ObjectID `bson:"actor_id"`
	Status      string             `bson:"status"`
	CreatedAt   time.Time          `bson:"created_at"`
	CancelledAt *time.Time         `bson:"cancelled_at,omitempty"`
}

func (d *bookingDocument) toModel() *model.Booking {
	b := &model.Booking{
		ID:        d.ID.Hex(),
		SlotID:    d.SlotID.Hex(),
		ActorID:   d.ActorID.Hex(),
		Status:    model.BookingStatus(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.CancelledAt != nil {
		at := d.CancelledAt.UTC()
		b.CancelledAt = &at
	}
	return b
}

type slotWindowDocument struct {
	StartAt time.Time `bson:"start_at"`
	EndAt   time.Time `bson:"end_at"`
}

type actorDocument struct {
	ID    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
	Role  string             `bson:"role"`
}

type bookingViewDocument struct {
	ID          primitive.ObjectID  `bson:"_id"`
	SlotID      primitive.ObjectID  `bson:"slot_id"`
	ActorID     primitive.ObjectID  `bson:"actor_id"`
	Status      string              `bson:"status"`
	CreatedAt   time.Time           `bson:"created_at"`
	CancelledAt *time.Time          `bson:"cancelled_at,omitempty"`
	Slot        *slotWindowDocument `bson:"slot,omitempty"`
	Actor       *actorDocument      `bson:"actor,omitempty"`
}

func (d *bookingViewDocument) toModel() *model.BookingView {
	booking := bookingDocument{
		ID:          d.ID,
		SlotID:      d.SlotID,
		ActorID:     d.ActorID,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
		CancelledAt: d.CancelledAt,
	}
	view := &model.BookingView{Booking: *booking.toModel()}
	if d.Slot != nil {
		view.Slot = model.SlotWindow{StartAt: d.Slot.StartAt.UTC(), EndAt: d.Slot.EndAt.UTC()}
	}
	if d.Actor != nil {
		// An unknown stored role leaves Role as the invalid zero value.
		role, _ := auth.ParseRole(d.Actor.Role)
		view.Actor = &model.ActorSummary{
			ID:    d.Actor.ID.Hex(),
			Name:  d.Actor.Name,
			Email: d.Actor.Email,
			Role:  role,
		}
	}
	return view
}

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

// Insert stores a booking. A second confirmed booking for the same slot is
// rejected by the partial unique index and reported as ErrSlotTaken.
func (r *mongoBookingRepository) Insert(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	slotID, err := primitive.ObjectIDFromHex(booking.SlotID)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrSlotNotFound, booking.SlotID)
	}
	actorID, err := primitive.ObjectIDFromHex(booking.ActorID)
	if err != nil {
		return fmt.Errorf("invalid actor ID %q: %w", booking.ActorID, err)
	}

	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	booking.CreatedAt = booking.CreatedAt.UTC().Truncate(time.Millisecond)

	doc := bookingDocument{
		SlotID:    slotID,
		ActorID:   actorID,
		Status:    string(booking.Status),
		CreatedAt: booking.CreatedAt,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrSlotTaken
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *mongoBookingRepository) FindConfirmedBySlot(ctx context.Context, slotID string) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(slotID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrSlotNotFound, slotID)
	}

	return r.findOne(ctx, bson.M{
		"slot_id": objectID,
		"status":  string(model.BookingStatusConfirmed),
	})
}

func (r *mongoBookingRepository) findOne(ctx context.Context, filter bson.M) (*model.Booking, error) {
	var doc bookingDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return doc.toModel(), nil
}

// MarkCancelled moves a confirmed booking to cancelled. A booking that is
// missing or no longer confirmed yields ErrNotFound.
func (r *mongoBookingRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": string(model.BookingStatusConfirmed),
	}
	update := bson.M{
		"$set": bson.M{
			"status":       string(model.BookingStatusCancelled),
			"cancelled_at": at.UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) ListForActor(ctx context.Context, actorID string) ([]*model.BookingView, error) {
	objectID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, fmt.Errorf("invalid actor ID %q: %w", actorID, err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"actor_id": objectID}}},
	}
	pipeline = append(pipeline, newestFirstWithSlot()...)

	return r.aggregate(ctx, pipeline)
}

func (r *mongoBookingRepository) ListAll(ctx context.Context) ([]*model.BookingView, error) {
	pipeline := newestFirstWithSlot()
	pipeline = append(pipeline,
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         identityrepository.CollectionName,
			"localField":   "actor_id",
			"foreignField": "_id",
			"as":           "actor",
			"pipeline": bson.A{
				bson.M{"$project": bson.M{"name": 1, "email": 1, "role": 1}},
			},
		}}},
		bson.D{{Key: "$unwind", Value: bson.M{"path": "$actor", "preserveNullAndEmptyArrays": true}}},
	)

	return r.aggregate(ctx, pipeline)
}

func newestFirstWithSlot() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         slotsrepository.CollectionName,
			"localField":   "slot_id",
			"foreignField": "_id",
			"as":           "slot",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$slot", "preserveNullAndEmptyArrays": true}}},
	}
}

func (r *mongoBookingRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]*model.BookingView, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, pipeline, options.Aggregate())
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bookingViewDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	views := make([]*model.BookingView, 0, len(docs))
	for i := range docs {
		views = append(views, docs[i].toModel())
	}
	return views, nil
}
