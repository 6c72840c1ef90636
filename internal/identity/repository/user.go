package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	identityerrors "medislot/internal/identity/errors"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	mongotx "medislot/pkg/db/mongo"
	"medislot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Users"

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	ReplaceChallenge(ctx context.Context, id string, challenge *model.Challenge) error
	ConsumeChallenge(ctx context.Context, id, code string, now time.Time) error
	Upsert(ctx context.Context, user *model.User) (bool, error)
}

type challengeDocument struct {
	Code      string    `bson:"code"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`
	Verified     bool               `bson:"verified"`
	Challenge    *challengeDocument `bson:"challenge,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func newDocument(user *model.User) userDocument {
	doc := userDocument{
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         user.Role.String(),
		Verified:     user.Verified,
		CreatedAt:    user.CreatedAt.UTC().Truncate(time.Millisecond),
	}
	if user.Challenge != nil {
		doc.Challenge = challengeToDocument(user.Challenge)
	}
	return doc
}

func challengeToDocument(c *model.Challenge) *challengeDocument {
	return &challengeDocument{
		Code:      c.Code,
		ExpiresAt: c.ExpiresAt.UTC().Truncate(time.Millisecond),
	}
}

func (d *userDocument) toModel() (*model.User, error) {
	role, err := auth.ParseRole(d.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", d.ID.Hex(), err)
	}

	user := &model.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         role,
		Verified:     d.Verified,
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if d.Challenge != nil {
		user.Challenge = &model.Challenge{
			Code:      d.Challenge.Code,
			ExpiresAt: d.Challenge.ExpiresAt.UTC(),
		}
	}
	return user, nil
}

type mongoUserRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoUserRepository(cfg *config.Config) UserRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoUserRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// Create inserts a user. The email is expected to be sanitized already.
func (r *mongoUserRepository) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	doc := newDocument(user)

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return identityerrors.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid.Hex()
	}
	user.CreatedAt = doc.CreatedAt
	return nil
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}
	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identityerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toModel()
}

// ReplaceChallenge swaps the pending challenge of an unverified user.
func (r *mongoUserRepository) ReplaceChallenge(ctx context.Context, id string, challenge *model.Challenge) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "verified": false}
	update := bson.M{"$set": bson.M{"challenge": challengeToDocument(challenge)}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to replace challenge: %w", err)
	}
	if result.MatchedCount == 0 {
		return identityerrors.ErrNotFound
	}
	return nil
}

// ConsumeChallenge marks the user verified and clears the challenge, provided
// the code matches and has not expired at now. Exactly one concurrent caller
// can succeed.
func (r *mongoUserRepository) ConsumeChallenge(ctx context.Context, id, code string, now time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":                  objectID,
		"verified":             false,
		"challenge.code":       code,
		"challenge.expires_at": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{
		"$set":   bson.M{"verified": true},
		"$unset": bson.M{"challenge": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	if result.MatchedCount == 0 {
		return identityerrors.ErrChallengeNotConsumed
	}
	return nil
}

// Upsert inserts the user unless one with the same email exists. It reports
// whether a new record was created. Existing records are left untouched.
func (r *mongoUserRepository) Upsert(ctx context.Context, user *model.User) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	doc := newDocument(user)

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"email": doc.Email},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}

	if oid, ok := result.UpsertedID.(primitive.ObjectID); ok {
		user.ID = oid.Hex()
		return true, nil
	}
	return false, nil
}
