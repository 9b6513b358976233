package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/availability"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/repository"
)

// MonthAvailability is the answer to a month availability query.
type MonthAvailability struct {
	TrainerID      string              `json:"trainer_id"`
	Year           int                 `json:"year"`
	Month          int                 `json:"month"`
	LessonMinutes  int                 `json:"lesson_duration"`
	MaxAdvanceDays int                 `json:"max_advance_days"`
	Slots          map[string][]string `json:"slots"`
}

// Availability lists the open start times of a trainer for one month,
// limited to the advance booking window.
func (s *Service) Availability(ctx context.Context, trainerID string, year, month int, multipleDogs bool) (*MonthAvailability, error) {
	if strings.TrimSpace(trainerID) == "" {
		return nil, apperr.Validation("trainer_id is required")
	}
	if year < 2020 || year > 2100 {
		return nil, apperr.Validation("year must be between 2020 and 2100")
	}
	if month < 1 || month > 12 {
		return nil, apperr.Validation("month must be between 1 and 12")
	}
	cfg := s.Engine.Config()
	out := &MonthAvailability{
		TrainerID:      trainerID,
		Year:           year,
		Month:          month,
		LessonMinutes:  int(cfg.LessonLength(multipleDogs) / time.Minute),
		MaxAdvanceDays: cfg.MaxAdvanceDays,
		Slots:          map[string][]string{},
	}
	rng, ok := availability.SearchRange(year, time.Month(month), s.Now(), cfg.MaxAdvanceDays, s.location())
	if !ok {
		return out, nil
	}
	existing, err := s.occupied(ctx, trainerID, rng.From.AddDate(0, 0, -1), rng.To.AddDate(0, 0, 2), 0)
	if err != nil {
		return nil, err
	}
	out.Slots = s.Engine.Month(year, time.Month(month), trainerID, multipleDogs, existing)
	return out, nil
}

type HoldRequest struct {
	CustomerID   uint64
	TrainerID    string
	Start        time.Time
	MultipleDogs bool
}

// HoldSlot places a short provisional hold on a free slot so other
// customers cannot book it while this one is paying.  Booking the slot
// releases the hold.
func (s *Service) HoldSlot(ctx context.Context, req HoldRequest) (*model.SlotHold, error) {
	if s.Holds == nil {
		return nil, apperr.Validation("slot holds are not enabled")
	}
	if err := (BookRequest{CustomerID: req.CustomerID, TrainerID: req.TrainerID, Start: req.Start}).validate(); err != nil {
		return nil, err
	}
	duration := s.Engine.Config().LessonLength(req.MultipleDogs)
	h := &model.SlotHold{
		CustomerID: req.CustomerID,
		TrainerID:  req.TrainerID,
		StartAt:    req.Start,
		EndAt:      req.Start.Add(duration),
		ExpiresAt:  s.Now().Add(s.HoldTTL),
	}
	err := s.withFreeSlot(ctx, req.TrainerID, req.Start, duration, req.CustomerID, func(ctx context.Context) error {
		if err := s.Holds.Create(ctx, h); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperr.Validation("slot is already held by another customer")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}
