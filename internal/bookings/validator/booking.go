package validator

import (
	"strings"

	"medislot/pkg/logger"
	"medislot/pkg/model"
	"medislot/pkg/validation"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	return &BookingValidator{
		validate: validation.New(),
		logger:   log,
	}
}

// ValidateReserve checks payload shape only. Whether the slot exists is
// decided by the reservation itself.
func (v *BookingValidator) ValidateReserve(req *model.ReserveRequest) error {
	req.SlotID = strings.TrimSpace(req.SlotID)
	return validation.Struct(v.validate, req)
}

// WellFormedID reports whether id can reference a stored document.
func WellFormedID(id string) bool {
	return primitive.IsValidObjectID(id)
}
