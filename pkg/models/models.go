package models

import (
	"time"

	"github.com/google/uuid"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleAdmin  Role = "administrator"
	RoleLawyer Role = "lawyer"
	RoleClient Role = "client"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLawyer, RoleClient:
		return true
	}
	return false
}

// UserStatus marks whether an account may act. Users are never deleted.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// CaseState defines lifecycle states for a case.
type CaseState string

const (
	CasePending    CaseState = "pendiente"
	CaseInReview   CaseState = "en_revision"
	CaseInProgress CaseState = "en_proceso"
	CaseWon        CaseState = "ganado"
	CaseLost       CaseState = "perdido"
	CaseCompleted  CaseState = "completado"
)

// Terminal reports whether no further transition is allowed from s.
func (s CaseState) Terminal() bool {
	return s == CaseWon || s == CaseLost || s == CaseCompleted
}

// Valid reports whether s is a known case state.
func (s CaseState) Valid() bool {
	switch s {
	case CasePending, CaseInReview, CaseInProgress, CaseWon, CaseLost, CaseCompleted:
		return true
	}
	return false
}

// Active reports whether the case is being worked on.
func (s CaseState) Active() bool {
	return s == CaseInReview || s == CaseInProgress
}

// AppointmentState defines lifecycle states for an appointment.
type AppointmentState string

const (
	AppointmentScheduled AppointmentState = "scheduled"
	AppointmentCompleted AppointmentState = "completed"
	AppointmentCancelled AppointmentState = "cancelled"
)

// Case types offered when opening a case.
var CaseTypes = []string{
	"Derecho Civil", "Derecho Penal", "Derecho Laboral",
	"Derecho Familiar", "Derecho Comercial", "Otro",
}

// Document types offered on upload.
var DocumentTypes = []string{
	"Contrato", "Demanda", "Resolución", "Prueba",
	"Comunicación", "Informe", "Otro",
}

/* =============================== Entities =============================== */

// User is an account of any role. Email is unique; status is the only mutable field.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         Role       `gorm:"type:varchar(20);not null;index" json:"role"`
	Status       UserStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Active reports whether the account may act.
func (u *User) Active() bool { return u.Status == UserActive }

// LawyerProfile holds lawyer attributes, 1:1 with a lawyer User.
type LawyerProfile struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Specialty       string    `json:"specialty"`
	LicenseNumber   string    `json:"license_number"`
	ExperienceYears int       `json:"experience_years"`
	Phone           string    `json:"phone"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"user"`
}

// ClientProfile holds client attributes, 1:1 with a client User.
type ClientProfile struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Address    string     `json:"address"`
	Phone      string     `json:"phone"`
	NationalID string     `json:"national_id"`
	BirthDate  *time.Time `gorm:"type:date" json:"birth_date,omitempty"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"user"`
}

// Case links one client profile and one lawyer profile through a lifecycle.
type Case struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Type        string    `gorm:"not null" json:"type"`
	Description string    `gorm:"type:text" json:"description"`
	State       CaseState `gorm:"type:varchar(20);not null;default:'pendiente';index" json:"state"`
	ClientID    uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID    uuid.UUID `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	StartDate   time.Time `gorm:"type:date;not null" json:"start_date"`
	BudgetCents *int64    `json:"budget_cents,omitempty"` // stored in cents to avoid float issues
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CaseHistory is an audit log entry for important case changes.
type CaseHistory struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	ActorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"actor_id"`  // user who performed the action
	Action    string    `gorm:"type:varchar(50);not null" json:"action"`   // created, transitioned, forced_close
	OldState  CaseState `gorm:"type:varchar(20)" json:"old_state,omitempty"`
	NewState  CaseState `gorm:"type:varchar(20)" json:"new_state"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is a lawyer/client meeting on an exact (date, time) slot.
// The partial unique index keeps at most one non-cancelled booking per slot.
type Appointment struct {
	ID        uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LawyerID  uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_appointment_slot,where:state <> 'cancelled'" json:"lawyer_id"`
	ClientID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"client_id"`
	CaseID    *uuid.UUID       `gorm:"type:uuid;index" json:"case_id,omitempty"`
	Date      time.Time        `gorm:"type:date;not null;uniqueIndex:ux_appointment_slot,where:state <> 'cancelled'" json:"date"`
	Time      string           `gorm:"type:varchar(5);not null;uniqueIndex:ux_appointment_slot,where:state <> 'cancelled'" json:"time"` // HH:MM
	Motive    string           `gorm:"not null" json:"motive"`
	Notes     string           `gorm:"type:text" json:"notes,omitempty"`
	State     AppointmentState `gorm:"type:varchar(20);not null;default:'scheduled'" json:"state"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Message is immutable once sent, except Read which only the recipient sets.
type Message struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SenderID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	RecipientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipient_id"`
	CaseID      *uuid.UUID `gorm:"type:uuid;index" json:"case_id,omitempty"`
	Subject     string     `json:"subject"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	Read        bool       `gorm:"not null;default:false" json:"read"`
	SentAt      time.Time  `gorm:"not null;index" json:"sent_at"`
}

// Document is one version of a file attached to a case. Rows are never updated.
type Document struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_document_version" json:"case_id"`
	Filename     string    `gorm:"not null;uniqueIndex:ux_document_version" json:"filename"`
	Version      int       `gorm:"not null;uniqueIndex:ux_document_version" json:"version"`
	StoragePath  string    `gorm:"not null" json:"storage_path"`
	DocumentType string    `gorm:"not null" json:"document_type"`
	SizeBytes    int64     `gorm:"not null" json:"size_bytes"`
	UploadedBy   uuid.UUID `gorm:"type:uuid;not null;index" json:"uploaded_by"`
	UploadedAt   time.Time `gorm:"not null" json:"uploaded_at"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &LawyerProfile{}, &ClientProfile{},
		&Case{}, &CaseHistory{}, &Appointment{}, &Message{}, &Document{},
	}
}
