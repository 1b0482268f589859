// Package gormstore is the Postgres implementation of store.Repository.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

type Store struct{ db *gorm.DB }

var _ store.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

/* =============================== Helpers ================================ */

// isUniqueViolation detects 23505 whether or not TranslateError is enabled.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func insertErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func lookupErr(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity)
	}
	return err
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

/* ================================ Users ================================= */

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	return insertErr(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&u).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

func (s *Store) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&u, "id = ?", id).Error
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

func (s *Store) UpdateUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ExcludeID != uuid.Nil {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	out := make([]models.User, 0)
	err := q.Order("name ASC").Order("email ASC").Find(&out).Error
	return out, err
}

/* =============================== Profiles =============================== */

func (s *Store) CreateLawyerProfile(ctx context.Context, p *models.LawyerProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return insertErr(s.db.WithContext(ctx).Omit("User").Create(p).Error)
}

func (s *Store) CreateClientProfile(ctx context.Context, p *models.ClientProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return insertErr(s.db.WithContext(ctx).Omit("User").Create(p).Error)
}

func (s *Store) LawyerProfileByID(ctx context.Context, id uuid.UUID) (*models.LawyerProfile, error) {
	var p models.LawyerProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&p, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "lawyer profile")
	}
	return &p, nil
}

func (s *Store) LawyerProfileByUser(ctx context.Context, userID uuid.UUID) (*models.LawyerProfile, error) {
	var p models.LawyerProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, lookupErr(err, "lawyer profile")
	}
	return &p, nil
}

func (s *Store) ClientProfileByID(ctx context.Context, id uuid.UUID) (*models.ClientProfile, error) {
	var p models.ClientProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&p, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "client profile")
	}
	return &p, nil
}

func (s *Store) ClientProfileByUser(ctx context.Context, userID uuid.UUID) (*models.ClientProfile, error) {
	var p models.ClientProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, lookupErr(err, "client profile")
	}
	return &p, nil
}

func (s *Store) ListLawyerProfiles(ctx context.Context, activeOnly bool) ([]models.LawyerProfile, error) {
	q := s.db.WithContext(ctx).Joins("User")
	if activeOnly {
		q = q.Where(`"User"."status" = ?`, models.UserActive)
	}
	out := make([]models.LawyerProfile, 0)
	err := q.Order(`"User"."name" ASC`).Find(&out).Error
	return out, err
}

func (s *Store) ListClientProfiles(ctx context.Context, activeOnly bool) ([]models.ClientProfile, error) {
	q := s.db.WithContext(ctx).Joins("User")
	if activeOnly {
		q = q.Where(`"User"."status" = ?`, models.UserActive)
	}
	out := make([]models.ClientProfile, 0)
	err := q.Order(`"User"."name" ASC`).Find(&out).Error
	return out, err
}

/* ================================= Cases ================================ */

func (s *Store) CreateCase(ctx context.Context, c *models.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return insertErr(s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) CaseByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Case, error) {
	q := s.db.WithContext(ctx)
	if forUpdate {
		// Lock the row until the surrounding transaction ends
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c models.Case
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "case")
	}
	return &c, nil
}

func (s *Store) UpdateCaseState(ctx context.Context, id uuid.UUID, state models.CaseState, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Case{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": state, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("case")
	}
	return nil
}

func (s *Store) ListCases(ctx context.Context, f store.CaseFilter) ([]models.Case, error) {
	q := s.db.WithContext(ctx).Model(&models.Case{})
	if f.ClientID != uuid.Nil {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.LawyerID != uuid.Nil {
		q = q.Where("lawyer_id = ?", f.LawyerID)
	}
	if len(f.States) > 0 {
		q = q.Where("state IN ?", f.States)
	}
	if f.StartFrom != nil {
		q = q.Where("start_date >= ?", day(*f.StartFrom))
	}
	if f.StartTo != nil {
		q = q.Where("start_date <= ?", day(*f.StartTo))
	}
	out := make([]models.Case, 0)
	err := q.Order("created_at DESC").Order("id").Find(&out).Error
	return out, err
}

func (s *Store) AppendCaseHistory(ctx context.Context, h *models.CaseHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *Store) ListCaseHistory(ctx context.Context, caseID uuid.UUID) ([]models.CaseHistory, error) {
	out := make([]models.CaseHistory, 0)
	err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

/* ============================= Appointments ============================= */

func (s *Store) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return insertErr(s.db.WithContext(ctx).Create(a).Error)
}

func (s *Store) AppointmentByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var a models.Appointment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "appointment")
	}
	return &a, nil
}

func (s *Store) SlotTaken(ctx context.Context, lawyerID uuid.UUID, date time.Time, hhmm string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("lawyer_id = ? AND date = ? AND time = ? AND state <> ?",
			lawyerID, day(date), hhmm, models.AppointmentCancelled).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) UpdateAppointmentState(ctx context.Context, id uuid.UUID, state models.AppointmentState, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": state, "updated_at": at})
	if res.Error != nil {
		return insertErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (s *Store) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]models.Appointment, error) {
	q := s.db.WithContext(ctx).Model(&models.Appointment{})
	if f.LawyerID != uuid.Nil {
		q = q.Where("lawyer_id = ?", f.LawyerID)
	}
	if f.ClientID != uuid.Nil {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.FromDate != nil {
		q = q.Where("date >= ?", day(*f.FromDate))
	}
	if len(f.States) > 0 {
		q = q.Where("state IN ?", f.States)
	}
	out := make([]models.Appointment, 0)
	err := q.Order("date ASC").Order("time ASC").Find(&out).Error
	return out, err
}

/* =============================== Messages =============================== */

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) MessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "message")
	}
	return &m, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

func (s *Store) ListInbox(ctx context.Context, recipientID uuid.UUID) ([]models.Message, error) {
	out := make([]models.Message, 0)
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("sent_at DESC").
		Find(&out).Error
	return out, err
}

/* =============================== Documents ============================== */

func (s *Store) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return insertErr(s.db.WithContext(ctx).Create(d).Error)
}

func (s *Store) MaxDocumentVersion(ctx context.Context, caseID uuid.UUID, filename string) (int, error) {
	var v int
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("case_id = ? AND filename = ?", caseID, filename).
		Select("COALESCE(MAX(version), 0)").
		Scan(&v).Error
	return v, err
}

func (s *Store) DocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "document")
	}
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, caseID uuid.UUID) ([]models.Document, error) {
	out := make([]models.Document, 0)
	err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("uploaded_at DESC").Order("version DESC").
		Find(&out).Error
	return out, err
}
