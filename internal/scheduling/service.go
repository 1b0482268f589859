// Package scheduling books lawyer appointments on exact (date, time) slots.
//
// A slot is held by at most one non-cancelled appointment. The pre-check
// inside the transaction gives a clean answer for the common case; the
// unique index on the slot settles concurrent bookings.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/metrics"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

type Service struct {
	repo   store.Repository
	access *access.Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo store.Repository, eng *access.Engine, log *zap.Logger) *Service {
	return &Service{repo: repo, access: eng, log: log, now: time.Now}
}

// BookRequest identifies the slot and the parties of a new appointment.
type BookRequest struct {
	LawyerID uuid.UUID  // lawyer profile
	ClientID uuid.UUID  // client profile
	CaseID   *uuid.UUID // optional; its parties must match
	Date     time.Time
	Time     string // HH:MM, 24h
	Motive   string
	Notes    string
}

// NormalizeTime parses a 24h clock value and returns it as HH:MM.
func NormalizeTime(s string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", apperr.InvalidArgument("time must be HH:MM")
	}
	return t.Format("15:04"), nil
}

// Book inserts a scheduled appointment, or fails with ErrSlotUnavailable
// when the lawyer already holds a non-cancelled booking on that slot.
func (s *Service) Book(ctx context.Context, actor access.Actor, req BookRequest) (*models.Appointment, error) {
	a, err := s.book(ctx, actor, req)

	outcome := metrics.Outcome(err)
	if errors.Is(err, apperr.ErrSlotUnavailable) {
		outcome = "conflict"
	}
	metrics.AppointmentsBooked.WithLabelValues(outcome).Inc()
	return a, err
}

func (s *Service) book(ctx context.Context, actor access.Actor, req BookRequest) (*models.Appointment, error) {
	if err := s.access.Require(actor, access.ActionCreate, access.NewAppointmentResource(req.LawyerID, req.ClientID)); err != nil {
		return nil, err
	}
	hhmm, err := NormalizeTime(req.Time)
	if err != nil {
		return nil, err
	}
	req.Motive = strings.TrimSpace(req.Motive)
	switch {
	case req.Date.IsZero():
		return nil, apperr.InvalidArgument("date is required")
	case req.Motive == "":
		return nil, apperr.InvalidArgument("motive is required")
	}

	now := s.now()
	appt := &models.Appointment{
		ID:        uuid.New(),
		LawyerID:  req.LawyerID,
		ClientID:  req.ClientID,
		CaseID:    req.CaseID,
		Date:      store.DateOnly(req.Date),
		Time:      hhmm,
		Motive:    req.Motive,
		Notes:     strings.TrimSpace(req.Notes),
		State:     models.AppointmentScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.repo.WithinTx(ctx, func(tx store.Repository) error {
		if _, err := tx.LawyerProfileByID(ctx, req.LawyerID); err != nil {
			return err
		}
		if _, err := tx.ClientProfileByID(ctx, req.ClientID); err != nil {
			return err
		}
		if req.CaseID != nil {
			cs, err := tx.CaseByID(ctx, *req.CaseID, false)
			if err != nil {
				return err
			}
			if cs.LawyerID != req.LawyerID || cs.ClientID != req.ClientID {
				return apperr.InvalidArgument("case does not link this lawyer and client")
			}
		}

		taken, err := tx.SlotTaken(ctx, appt.LawyerID, appt.Date, appt.Time)
		if err != nil {
			return err
		}
		if taken {
			return slotErr(appt)
		}
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			if store.IsDuplicate(err) {
				return slotErr(appt)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrSlotUnavailable) {
			s.log.Info("slot unavailable",
				zap.String("lawyer_id", appt.LawyerID.String()),
				zap.String("date", appt.Date.Format(time.DateOnly)),
				zap.String("time", appt.Time))
		}
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("lawyer_id", appt.LawyerID.String()),
		zap.String("client_id", appt.ClientID.String()),
		zap.String("by", actor.UserID.String()))
	return appt, nil
}

func slotErr(a *models.Appointment) error {
	return fmt.Errorf("%w: %s %s", apperr.ErrSlotUnavailable, a.Date.Format(time.DateOnly), a.Time)
}

// Cancel frees the slot of a scheduled appointment.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Appointment, error) {
	return s.close(ctx, actor, id, models.AppointmentCancelled)
}

// Complete marks a scheduled appointment as held.
func (s *Service) Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Appointment, error) {
	return s.close(ctx, actor, id, models.AppointmentCompleted)
}

// close applies scheduled -> to; no other edge exists.
func (s *Service) close(ctx context.Context, actor access.Actor, id uuid.UUID, to models.AppointmentState) (*models.Appointment, error) {
	var out *models.Appointment
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		a, err := tx.AppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.access.Require(actor, access.ActionWrite, access.AppointmentResource(a)); err != nil {
			return err
		}
		if a.State != models.AppointmentScheduled {
			return fmt.Errorf("%w: appointment is %s", apperr.ErrInvalidTransition, a.State)
		}
		now := s.now()
		if err := tx.UpdateAppointmentState(ctx, a.ID, to, now); err != nil {
			return err
		}
		a.State, a.UpdatedAt = to, now
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment closed",
		zap.String("appointment_id", id.String()),
		zap.String("state", string(to)),
		zap.String("by", actor.UserID.String()))
	return out, nil
}

// Upcoming returns the lawyer's scheduled appointments from today on,
// keeping only those the actor may read. A zero lawyerID means the
// actor's own calendar.
func (s *Service) Upcoming(ctx context.Context, actor access.Actor, lawyerID uuid.UUID) ([]models.Appointment, error) {
	if lawyerID == uuid.Nil {
		if !actor.IsLawyer() {
			return nil, apperr.InvalidArgument("lawyer_id is required")
		}
		lawyerID = actor.ProfileID
	}
	today := store.DateOnly(s.now())
	list, err := s.repo.ListAppointments(ctx, store.AppointmentFilter{
		LawyerID: lawyerID,
		FromDate: &today,
		States:   []models.AppointmentState{models.AppointmentScheduled},
	})
	if err != nil {
		return nil, err
	}
	return visible(actor, list), nil
}

// ListFor returns every appointment the actor takes part in, by date then time.
func (s *Service) ListFor(ctx context.Context, actor access.Actor) ([]models.Appointment, error) {
	var f store.AppointmentFilter
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleLawyer:
		f.LawyerID = actor.ProfileID
	case models.RoleClient:
		f.ClientID = actor.ProfileID
	default:
		return nil, apperr.Forbidden("not authorized")
	}
	if !actor.IsAdmin() && actor.ProfileID == uuid.Nil {
		return nil, apperr.Forbidden("profile missing")
	}
	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, err
	}
	return visible(actor, list), nil
}

func visible(actor access.Actor, list []models.Appointment) []models.Appointment {
	out := make([]models.Appointment, 0, len(list))
	for i := range list {
		if access.Decide(actor, access.ActionRead, access.AppointmentResource(&list[i])).Allowed {
			out = append(out, list[i])
		}
	}
	return out
}
