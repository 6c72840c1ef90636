package testutil

import (
	"context"
	"testing"
	"time"

	bookingrepository "medislot/internal/bookings/repository"
	identityrepository "medislot/internal/identity/repository"
	slotrepository "medislot/internal/slots/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultMongoURI     = "mongodb://localhost:27017"
	DefaultDatabaseName = "medislot"
	ConnectionTimeout   = 10 * time.Second
)

// MongoHelper reaches into the server's database for state the API does not expose.
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoHelper(t *testing.T, mongoURI, dbName string) *MongoHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	return &MongoHelper{Client: client, Database: client.Database(dbName)}
}

func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}

// CleanDatabase empties the service collections. Documents are deleted rather
// than collections dropped so migrated validators and indexes stay in place.
func (m *MongoHelper) CleanDatabase(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, name := range []string{
		bookingrepository.CollectionName,
		slotrepository.CollectionName,
		identityrepository.CollectionName,
	} {
		if _, err := m.Database.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			t.Fatalf("failed to clean collection %s: %v", name, err)
		}
	}
}

// InsertSlot stores an unbooked slot and returns its id.
func (m *MongoHelper) InsertSlot(t *testing.T, start time.Time, length time.Duration) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := m.Database.Collection(slotrepository.CollectionName).InsertOne(ctx, bson.M{
		"start_at":  start.UTC(),
		"end_at":    start.Add(length).UTC(),
		"is_booked": false,
	})
	if err != nil {
		t.Fatalf("failed to insert slot: %v", err)
	}
	return res.InsertedID.(primitive.ObjectID).Hex()
}

func (m *MongoHelper) SlotBooked(t *testing.T, id string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		t.Fatalf("invalid slot id %q: %v", id, err)
	}

	var doc struct {
		IsBooked bool `bson:"is_booked"`
	}
	if err := m.Database.Collection(slotrepository.CollectionName).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		t.Fatalf("failed to load slot %s: %v", id, err)
	}
	return doc.IsBooked
}

// PendingOTP returns the outstanding verification code for email.
func (m *MongoHelper) PendingOTP(t *testing.T, email string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var doc struct {
		Challenge *struct {
			Code string `bson:"code"`
		} `bson:"challenge"`
	}
	err := m.Database.Collection(identityrepository.CollectionName).FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		t.Fatalf("failed to load user %s: %v", email, err)
	}
	if doc.Challenge == nil {
		t.Fatalf("user %s has no pending challenge", email)
	}
	return doc.Challenge.Code
}

// PromoteToAdmin changes a stored role. Sessions pick it up on the next request.
func (m *MongoHelper) PromoteToAdmin(t *testing.T, email string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.Database.Collection(identityrepository.CollectionName).UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"role": "admin"}},
	)
	if err != nil {
		t.Fatalf("failed to promote %s: %v", email, err)
	}
}
