package validator

import (
	"time"

	"medislot/pkg/logger"
	"medislot/pkg/model"
	"medislot/pkg/validation"

	"github.com/go-playground/validator/v10"
)

const maxSlotLength = 24 * time.Hour

type SlotValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewSlotValidator(log *logger.Logger) *SlotValidator {
	return &SlotValidator{
		validate: validation.New(),
		logger:   log,
	}
}

func (v *SlotValidator) Validate(input *model.SlotInput) error {
	if err := validation.Struct(v.validate, input); err != nil {
		return err
	}

	if input.EndAt.Sub(input.StartAt) > maxSlotLength {
		return validation.ValidationErrors{
			validation.ValidationError{
				Field:   "endAt",
				Message: "a slot cannot be longer than 24 hours",
			},
		}
	}

	return nil
}

func (v *SlotValidator) ValidateGrid(spec *model.GridSpec) error {
	var errs validation.ValidationErrors

	if spec.Days <= 0 {
		errs = append(errs, validation.ValidationError{Field: "days", Message: "days must be positive"})
	}
	if spec.SlotLength <= 0 {
		errs = append(errs, validation.ValidationError{Field: "slotLength", Message: "slot length must be positive"})
	}
	if spec.DayStart < 0 || spec.DayEnd > maxSlotLength || spec.DayEnd <= spec.DayStart {
		errs = append(errs, validation.ValidationError{Field: "dayEnd", Message: "working hours must be a non-empty span within one day"})
	}
	if spec.Location == nil {
		errs = append(errs, validation.ValidationError{Field: "location", Message: "location is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
