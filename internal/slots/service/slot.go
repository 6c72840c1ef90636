package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	slotserrors "medislot/internal/slots/errors"
	"medislot/internal/slots/repository"
	"medislot/internal/slots/validator"
	"medislot/pkg/config"
	apperrors "medislot/pkg/errors"
	"medislot/pkg/model"
	"medislot/pkg/validation"
)

// Accepted range bound layouts, tried in order. Bounds without a zone are UTC.
var rangeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

type SlotService interface {
	ListAvailable(ctx context.Context, r model.TimeRange) ([]*model.Slot, error)
	Get(ctx context.Context, id string) (*model.Slot, error)
	Create(ctx context.Context, input *model.SlotInput) (*model.Slot, error)
	Generate(ctx context.Context, spec model.GridSpec) (int, error)
}

type slotService struct {
	repo      repository.SlotRepository
	validator *validator.SlotValidator
	cfg       *config.Config
}

func NewSlotService(
	repo repository.SlotRepository,
	validator *validator.SlotValidator,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

// ParseRange builds an inclusive range from raw query bounds.
func ParseRange(from, to string) (model.TimeRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return model.TimeRange{}, apperrors.InvalidRange("From and to dates are required")
	}

	fromTime, ok := parseBound(from)
	if !ok {
		return model.TimeRange{}, apperrors.InvalidRange("Invalid from date format")
	}
	toTime, ok := parseBound(to)
	if !ok {
		return model.TimeRange{}, apperrors.InvalidRange("Invalid to date format")
	}

	if fromTime.After(toTime) {
		return model.TimeRange{}, apperrors.InvalidRange("From date must not be after to date")
	}

	return model.TimeRange{From: fromTime, To: toTime}, nil
}

func parseBound(s string) (time.Time, bool) {
	for _, layout := range rangeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *slotService) ListAvailable(ctx context.Context, r model.TimeRange) ([]*model.Slot, error) {
	if r.From.After(r.To) {
		return nil, apperrors.InvalidRange("From date must not be after to date")
	}

	slots, err := s.repo.FindAvailable(ctx, r)
	if err != nil {
		s.cfg.Log.Error("Failed to list available slots",
			"from", r.From,
			"to", r.To,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to fetch slots", err)
	}

	return slots, nil
}

func (s *slotService) Get(ctx context.Context, id string) (*model.Slot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) || errors.Is(err, slotserrors.ErrInvalidID) {
			return nil, apperrors.SlotNotFound(http.StatusNotFound)
		}
		s.cfg.Log.Error("Failed to get slot by ID",
			"slot_id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}

	return slot, nil
}

func (s *slotService) Create(ctx context.Context, input *model.SlotInput) (*model.Slot, error) {
	if err := s.validator.Validate(input); err != nil {
		s.cfg.Log.Warn("Slot validation failed",
			"start_at", input.StartAt,
			"end_at", input.EndAt,
			"error", err,
		)
		return nil, toAppError(err)
	}

	slot := &model.Slot{StartAt: input.StartAt, EndAt: input.EndAt}
	if err := s.repo.Create(ctx, slot); err != nil {
		if errors.Is(err, slotserrors.ErrDuplicateStart) {
			return nil, apperrors.Conflict("A slot already starts at this time")
		}
		s.cfg.Log.Error("Failed to create slot",
			"start_at", input.StartAt,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to create slot", err)
	}

	s.cfg.Log.Info("Slot created successfully",
		"slot_id", slot.ID,
		"start_at", slot.StartAt,
		"end_at", slot.EndAt,
	)

	return slot, nil
}

// Generate seeds the catalog from a recurring grid. Slots whose start time
// already exists are skipped, so running it twice is safe.
func (s *slotService) Generate(ctx context.Context, spec model.GridSpec) (int, error) {
	if err := s.validator.ValidateGrid(&spec); err != nil {
		return 0, toAppError(err)
	}

	slots := BuildGrid(spec)
	inserted, err := s.repo.InsertMany(ctx, slots)
	if err != nil {
		s.cfg.Log.Error("Failed to generate slots",
			"days", spec.Days,
			"planned", len(slots),
			"inserted", inserted,
			"error", err,
		)
		return inserted, apperrors.Internal("Failed to generate slots", err)
	}

	s.cfg.Log.Info("Slot grid generated",
		"days", spec.Days,
		"planned", len(slots),
		"inserted", inserted,
		"timezone", spec.Location.String(),
	)

	return inserted, nil
}

// BuildGrid lays out the grid's windows in order. Wall-clock hours are taken
// in spec.Location, so a grid keeps its local hours across DST changes.
func BuildGrid(spec model.GridSpec) []*model.Slot {
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}

	y, m, d := spec.StartDate.In(loc).Date()
	var slots []*model.Slot

	for day := 0; day < spec.Days; day++ {
		midnight := time.Date(y, m, d+day, 0, 0, 0, 0, loc)
		if spec.WeekdaysOnly && isWeekend(midnight.Weekday()) {
			continue
		}

		for offset := spec.DayStart; offset+spec.SlotLength <= spec.DayEnd; offset += spec.SlotLength {
			start := wallClock(midnight, offset)
			end := wallClock(midnight, offset+spec.SlotLength)
			slots = append(slots, &model.Slot{
				StartAt: start.UTC(),
				EndAt:   end.UTC(),
			})
		}
	}

	return slots
}

func wallClock(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	mi := int((offset % time.Hour) / time.Minute)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, mi, 0, 0, midnight.Location())
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func toAppError(err error) error {
	var validationErrs validation.ValidationErrors
	if errors.As(err, &validationErrs) {
		return validationErrs.AppError()
	}
	return apperrors.Validation("Invalid slot", map[string]any{"error": err.Error()})
}
