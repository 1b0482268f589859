// Package store defines the persistence port used by the domain services.
// Adapters answer lookups of absent rows with apperr.ErrNotFound and
// unique-key collisions with ErrDuplicate.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/pkg/models"
)

// ErrDuplicate reports a unique constraint violation (email, slot, document version).
var ErrDuplicate = errors.New("duplicate key")

/* ================================ Filters ================================ */

// UserFilter narrows ListUsers. Zero values match everything.
type UserFilter struct {
	Role      models.Role
	Status    models.UserStatus
	ExcludeID uuid.UUID
}

// CaseFilter narrows ListCases. Zero values match everything.
type CaseFilter struct {
	ClientID  uuid.UUID // client profile id
	LawyerID  uuid.UUID // lawyer profile id
	States    []models.CaseState
	StartFrom *time.Time // inclusive, on start_date
	StartTo   *time.Time // inclusive, on start_date
}

// AppointmentFilter narrows ListAppointments. Zero values match everything.
type AppointmentFilter struct {
	LawyerID uuid.UUID
	ClientID uuid.UUID
	FromDate *time.Time // inclusive
	States   []models.AppointmentState
}

/* ================================= Port ================================== */

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// LockUser reads the user and holds a shared row lock until the transaction ends.
	LockUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, error)

	CreateLawyerProfile(ctx context.Context, p *models.LawyerProfile) error
	CreateClientProfile(ctx context.Context, p *models.ClientProfile) error
	LawyerProfileByID(ctx context.Context, id uuid.UUID) (*models.LawyerProfile, error)
	LawyerProfileByUser(ctx context.Context, userID uuid.UUID) (*models.LawyerProfile, error)
	ClientProfileByID(ctx context.Context, id uuid.UUID) (*models.ClientProfile, error)
	ClientProfileByUser(ctx context.Context, userID uuid.UUID) (*models.ClientProfile, error)
	ListLawyerProfiles(ctx context.Context, activeOnly bool) ([]models.LawyerProfile, error)
	ListClientProfiles(ctx context.Context, activeOnly bool) ([]models.ClientProfile, error)
}

type Cases interface {
	CreateCase(ctx context.Context, c *models.Case) error
	// CaseByID reads a case; forUpdate takes an exclusive row lock for the rest of the transaction.
	CaseByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Case, error)
	UpdateCaseState(ctx context.Context, id uuid.UUID, state models.CaseState, at time.Time) error
	// ListCases returns matches newest first.
	ListCases(ctx context.Context, f CaseFilter) ([]models.Case, error)
	AppendCaseHistory(ctx context.Context, h *models.CaseHistory) error
	// ListCaseHistory returns entries oldest first.
	ListCaseHistory(ctx context.Context, caseID uuid.UUID) ([]models.CaseHistory, error)
}

type Appointments interface {
	// CreateAppointment fails with ErrDuplicate when a non-cancelled booking holds the slot.
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	AppointmentByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	SlotTaken(ctx context.Context, lawyerID uuid.UUID, date time.Time, hhmm string) (bool, error)
	UpdateAppointmentState(ctx context.Context, id uuid.UUID, state models.AppointmentState, at time.Time) error
	// ListAppointments returns matches by date then time ascending.
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]models.Appointment, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	MessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	MarkMessageRead(ctx context.Context, id uuid.UUID) error
	// ListInbox returns messages addressed to recipientID, most recent first.
	ListInbox(ctx context.Context, recipientID uuid.UUID) ([]models.Message, error)
}

type Documents interface {
	// CreateDocument fails with ErrDuplicate when (case, filename, version) exists.
	CreateDocument(ctx context.Context, d *models.Document) error
	// MaxDocumentVersion returns 0 when no version exists yet.
	MaxDocumentVersion(ctx context.Context, caseID uuid.UUID, filename string) (int, error)
	DocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	// ListDocuments returns every version of every file, newest upload first.
	ListDocuments(ctx context.Context, caseID uuid.UUID) ([]models.Document, error)
}

// Repository is the full persistence port.
type Repository interface {
	Users
	Cases
	Appointments
	Messages
	Documents

	// WithinTx runs fn atomically; any error rolls every write back.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// DateOnly truncates t to midnight UTC, the granularity of date columns.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
