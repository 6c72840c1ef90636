package validation

import (
	"errors"
	"testing"

	apperrors "medislot/pkg/errors"
)

type sample struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"otp" validate:"omitempty,len=6,numeric"`
}

func TestStruct_Valid(t *testing.T) {
	v := New()
	if err := Struct(v, &sample{Name: "Asha", Email: "asha@example.com", Code: "123456"}); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := Struct(v, &sample{Name: "A", Email: "not-an-email", Code: "12ab56"})

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	got := map[string]string{}
	for _, e := range verrs {
		got[e.Field] = e.Message
	}

	want := map[string]string{
		"name":  "name must be at least 2 characters long",
		"email": "email must be a valid email address",
		"otp":   "otp must contain digits only",
	}
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("field %s: got %q, want %q", field, got[field], msg)
		}
	}
}

func TestValidationErrors_AppError(t *testing.T) {
	verrs := ValidationErrors{
		{Field: "name", Message: "name is required"},
		{Field: "email", Message: "email is required"},
	}

	appErr := verrs.AppError()
	if appErr.Code != apperrors.CodeValidation {
		t.Errorf("expected code %s, got %s", apperrors.CodeValidation, appErr.Code)
	}
	if appErr.Message != "name is required" {
		t.Errorf("expected first message, got %q", appErr.Message)
	}
	fields, ok := appErr.Details["fields"].(map[string]any)
	if !ok || len(fields) != 2 {
		t.Errorf("expected two field details, got %v", appErr.Details)
	}
}
