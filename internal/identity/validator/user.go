package validator

import (
	"strings"

	"medislot/pkg/logger"
	"medislot/pkg/model"
	"medislot/pkg/sanitizer"
	"medislot/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type UserValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewUserValidator(log *logger.Logger) *UserValidator {
	return &UserValidator{
		validate: validation.New(),
		logger:   log,
	}
}

// ValidateRegister normalizes name and email in place before checking them.
// Passwords are never altered.
func (v *UserValidator) ValidateRegister(req *model.RegisterRequest) error {
	req.Name = sanitizer.SanitizeName(req.Name)
	req.Email = sanitizer.SanitizeEmail(req.Email)
	return validation.Struct(v.validate, req)
}

func (v *UserValidator) ValidateVerify(req *model.VerifyRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Code = strings.TrimSpace(req.Code)
	return validation.Struct(v.validate, req)
}

func (v *UserValidator) ValidateResend(req *model.ResendRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	return validation.Struct(v.validate, req)
}

func (v *UserValidator) ValidateLogin(req *model.LoginRequest) error {
	req.Email = sanitizer.SanitizeEmail(req.Email)
	return validation.Struct(v.validate, req)
}
