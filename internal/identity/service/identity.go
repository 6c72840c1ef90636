package service

import (
	"context"
	"errors"
	"time"

	identityerrors "medislot/internal/identity/errors"
	"medislot/internal/identity/repository"
	"medislot/internal/identity/validator"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/model"
	"medislot/pkg/sanitizer"
	"medislot/pkg/validation"
)

// IdentityService registers and verifies actors and resolves session tokens
// into principals.
type IdentityService interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error)
	Verify(ctx context.Context, req *model.VerifyRequest) (*model.Session, error)
	Resend(ctx context.Context, req *model.ResendRequest) error
	Login(ctx context.Context, req *model.LoginRequest) (*model.Session, error)
	Me(ctx context.Context) (*model.User, error)
	VerifyIdentity(ctx context.Context, token string) (auth.Principal, error)
	EnsureAccount(ctx context.Context, account SeedAccount) (bool, error)
}

// SeedAccount is a pre-verified account created by provisioning tools.
type SeedAccount struct {
	Name     string
	Email    string
	Password string
	Role     auth.Role
}

type identityService struct {
	repo      repository.UserRepository
	validator *validator.UserValidator
	tokens    *auth.TokenManager
	hasher    PasswordHasher
	sender    ChallengeSender
	generate  CodeGenerator
	cfg       *config.Config
	now       func() time.Time
}

func NewIdentityService(
	repo repository.UserRepository,
	validator *validator.UserValidator,
	tokens *auth.TokenManager,
	hasher PasswordHasher,
	sender ChallengeSender,
	cfg *config.Config,
) IdentityService {
	return &identityService{
		repo:      repo,
		validator: validator,
		tokens:    tokens,
		hasher:    hasher,
		sender:    sender,
		generate:  GenerateOTP,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Register always creates a patient. Admins are provisioned by EnsureAccount.
func (s *identityService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	if err := s.validator.ValidateRegister(req); err != nil {
		return nil, validationAppError(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal("Registration failed. Please try again", err)
	}

	challenge, err := s.newChallenge()
	if err != nil {
		return nil, apperrors.Internal("Registration failed. Please try again", err)
	}

	user := &model.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         auth.RolePatient,
		Challenge:    challenge,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, identityerrors.ErrEmailTaken) {
			return nil, apperrors.UserExists()
		}
		s.cfg.Log.Error("Failed to register user", "email", req.Email, "error", err)
		return nil, apperrors.Internal("Registration failed. Please try again", err)
	}

	s.cfg.Log.Info("User registered", "user_id", user.ID)
	s.deliver(ctx, user, false)

	return user, nil
}

// Verify consumes the pending challenge and opens a session. Checks run in the
// order: user, challenge present and unexpired, code match.
func (s *identityService) Verify(ctx context.Context, req *model.VerifyRequest) (*model.Session, error) {
	if err := s.validator.ValidateVerify(req); err != nil {
		return nil, validationAppError(err)
	}

	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if user.Challenge == nil || user.Challenge.Expired(now) {
		return nil, apperrors.OTPExpired()
	}
	if !user.Challenge.Matches(req.Code) {
		s.cfg.Log.Info("OTP mismatch", "user_id", user.ID)
		return nil, apperrors.InvalidOTP()
	}

	if err := s.repo.ConsumeChallenge(ctx, user.ID, req.Code, now); err != nil {
		if errors.Is(err, identityerrors.ErrChallengeNotConsumed) {
			// Consumed, replaced or expired since it was read.
			return nil, apperrors.OTPExpired()
		}
		s.cfg.Log.Error("Failed to verify user", "user_id", user.ID, "error", err)
		return nil, apperrors.Internal("OTP verification failed", err)
	}

	user.Verified = true
	user.Challenge = nil
	s.cfg.Log.Info("User verified", "user_id", user.ID)

	return s.openSession(user)
}

// Resend replaces the pending challenge of an unverified user.
func (s *identityService) Resend(ctx context.Context, req *model.ResendRequest) error {
	if err := s.validator.ValidateResend(req); err != nil {
		return validationAppError(err)
	}

	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	if user.Verified {
		return apperrors.AlreadyVerified()
	}

	challenge, err := s.newChallenge()
	if err != nil {
		return apperrors.Internal("Failed to resend OTP", err)
	}

	if err := s.repo.ReplaceChallenge(ctx, user.ID, challenge); err != nil {
		if errors.Is(err, identityerrors.ErrNotFound) {
			// Verified concurrently.
			return apperrors.AlreadyVerified()
		}
		s.cfg.Log.Error("Failed to resend OTP", "user_id", user.ID, "error", err)
		return apperrors.Internal("Failed to resend OTP", err)
	}

	user.Challenge = challenge
	s.deliver(ctx, user, true)
	return nil
}

func (s *identityService) Login(ctx context.Context, req *model.LoginRequest) (*model.Session, error) {
	if err := s.validator.ValidateLogin(req); err != nil {
		return nil, validationAppError(err)
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, identityerrors.ErrNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		s.cfg.Log.Error("Failed to load user for login", "error", err)
		return nil, apperrors.Internal("Login failed", err)
	}

	if !s.hasher.Matches(user.PasswordHash, req.Password) {
		return nil, apperrors.InvalidCredentials()
	}
	if !user.Verified {
		return nil, apperrors.NotVerified(user.ID)
	}

	s.cfg.Log.Info("User logged in", "user_id", user.ID)
	return s.openSession(user)
}

func (s *identityService) Me(ctx context.Context) (*model.User, error) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	user, err := s.repo.FindByID(ctx, principal.ActorID)
	if err != nil {
		if errors.Is(err, identityerrors.ErrNotFound) || errors.Is(err, identityerrors.ErrInvalidID) {
			return nil, apperrors.Unauthorized("Invalid token")
		}
		return nil, apperrors.Internal("Failed to load profile", err)
	}
	return user, nil
}

// VerifyIdentity re-reads the account on every call. The stored role wins over
// the role in the token, and unverified accounts are refused.
func (s *identityService) VerifyIdentity(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return auth.Principal{}, apperrors.Unauthorized("Invalid token")
	}

	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identityerrors.ErrNotFound) || errors.Is(err, identityerrors.ErrInvalidID) {
			return auth.Principal{}, apperrors.Unauthorized("Invalid token")
		}
		s.cfg.Log.Error("Failed to resolve session", "user_id", claims.Subject, "error", err)
		return auth.Principal{}, apperrors.Internal("Failed to resolve session", err)
	}
	if !user.Verified {
		return auth.Principal{}, apperrors.Unauthorized("Invalid token")
	}

	return auth.Principal{ActorID: user.ID, Role: user.Role}, nil
}

// EnsureAccount creates a verified account unless the email is taken. It
// reports whether an account was created.
func (s *identityService) EnsureAccount(ctx context.Context, account SeedAccount) (bool, error) {
	if !account.Role.Valid() {
		return false, apperrors.InvalidInput("Seed account needs a valid role")
	}

	hash, err := s.hasher.Hash(account.Password)
	if err != nil {
		return false, err
	}

	user := &model.User{
		Name:         sanitizer.SanitizeName(account.Name),
		Email:        sanitizer.SanitizeEmail(account.Email),
		PasswordHash: hash,
		Role:         account.Role,
		Verified:     true,
		CreatedAt:    s.now().UTC(),
	}

	created, err := s.repo.Upsert(ctx, user)
	if err != nil {
		return false, err
	}
	if created {
		s.cfg.Log.Info("Seed account created", "user_id", user.ID, "role", user.Role.String())
	}
	return created, nil
}

func (s *identityService) findUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identityerrors.ErrNotFound) || errors.Is(err, identityerrors.ErrInvalidID) {
			return nil, apperrors.UserNotFound()
		}
		s.cfg.Log.Error("Failed to load user", "user_id", id, "error", err)
		return nil, apperrors.Internal("Failed to load user", err)
	}
	return user, nil
}

func (s *identityService) newChallenge() (*model.Challenge, error) {
	code, err := s.generate()
	if err != nil {
		return nil, err
	}
	return &model.Challenge{
		Code:      code,
		ExpiresAt: s.now().UTC().Add(s.cfg.OTPTTL),
	}, nil
}

func (s *identityService) openSession(user *model.User) (*model.Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.cfg.Log.Error("Failed to issue session token", "user_id", user.ID, "error", err)
		return nil, apperrors.Internal("Failed to start session", err)
	}
	return &model.Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// deliver runs after the user write. Failures are logged only, the user can
// always ask for a new code.
func (s *identityService) deliver(ctx context.Context, user *model.User, resent bool) {
	notice := ChallengeNotice{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Code:      user.Challenge.Code,
		ExpiresAt: user.Challenge.ExpiresAt,
		Resent:    resent,
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.sender.Send(sendCtx, notice); err != nil {
		s.cfg.Log.Error("Failed to deliver OTP", "user_id", user.ID, "error", err)
	}
}

func validationAppError(err error) error {
	var validationErrs validation.ValidationErrors
	if errors.As(err, &validationErrs) {
		return validationErrs.AppError()
	}
	return apperrors.Validation("Invalid input", map[string]any{"error": err.Error()})
}
