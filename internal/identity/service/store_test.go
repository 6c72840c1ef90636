package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	identityerrors "medislot/internal/identity/errors"
	"medislot/internal/identity/validator"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	"medislot/pkg/logger"
	"medislot/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// memoryUsers mirrors the conditional updates of the Mongo repository.
type memoryUsers struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	findErr error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[string]*model.User)}
}

func clone(u *model.User) *model.User {
	c := *u
	if u.Challenge != nil {
		ch := *u.Challenge
		c.Challenge = &ch
	}
	return &c
}

func (m *memoryUsers) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return identityerrors.ErrEmailTaken
		}
	}
	user.ID = primitive.NewObjectID().Hex()
	m.byID[user.ID] = clone(user)
	return nil
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if !primitive.IsValidObjectID(id) {
		return nil, identityerrors.ErrInvalidID
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, identityerrors.ErrNotFound
	}
	return clone(u), nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, identityerrors.ErrNotFound
}

func (m *memoryUsers) ReplaceChallenge(_ context.Context, id string, challenge *model.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.Verified {
		return identityerrors.ErrNotFound
	}
	ch := *challenge
	u.Challenge = &ch
	return nil
}

func (m *memoryUsers) ConsumeChallenge(_ context.Context, id, code string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.Verified || u.Challenge == nil || u.Challenge.Code != code || !u.Challenge.ExpiresAt.After(now) {
		return identityerrors.ErrChallengeNotConsumed
	}
	u.Verified = true
	u.Challenge = nil
	return nil
}

func (m *memoryUsers) Upsert(_ context.Context, user *model.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return false, nil
		}
	}
	user.ID = primitive.NewObjectID().Hex()
	m.byID[user.ID] = clone(user)
	return true, nil
}

func (m *memoryUsers) get(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.byID[id])
}

type recordingSender struct {
	mu      sync.Mutex
	notices []ChallengeNotice
	err     error
}

func (s *recordingSender) Send(_ context.Context, notice ChallengeNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
	return s.err
}

func (s *recordingSender) last() ChallengeNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notices[len(s.notices)-1]
}

type fixture struct {
	svc    *identityService
	users  *memoryUsers
	sender *recordingSender
	tokens *auth.TokenManager
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		OTPTTL:       5 * time.Minute,
		WriteTimeout: time.Second,
		Log:          logger.Discard(),
	}
	f := &fixture{
		users:  newMemoryUsers(),
		sender: &recordingSender{},
		tokens: auth.NewTokenManager(strings.Repeat("k", 32), time.Hour),
		clock:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewIdentityService(
		f.users,
		validator.NewUserValidator(cfg.Log),
		f.tokens,
		NewBcryptHasher(bcrypt.MinCost),
		f.sender,
		cfg,
	).(*identityService)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) register(t *testing.T, email string) *model.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Name:     "Pat Patient",
		Email:    email,
		Password: "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return user
}
