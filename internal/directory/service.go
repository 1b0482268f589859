// Package directory stores users, roles and role profiles, and resolves actors.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

// Hasher is the credential boundary; plaintext never goes past it.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type LawyerDetails struct {
	Specialty       string
	LicenseNumber   string
	ExperienceYears int
	Phone           string
}

type ClientDetails struct {
	Address    string
	Phone      string
	NationalID string
	BirthDate  *time.Time
}

// Registration creates a user and, for lawyers and clients, its profile.
type Registration struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Lawyer   *LawyerDetails
	Client   *ClientDetails
}

// Account is a user together with its role profile id (Nil for administrators).
type Account struct {
	User      models.User
	ProfileID uuid.UUID
}

func (a Account) Actor() access.Actor {
	return access.Actor{UserID: a.User.ID, Role: a.User.Role, ProfileID: a.ProfileID}
}

// Profile is the full view of one user returned by /me.
type Profile struct {
	User   models.User           `json:"user"`
	Lawyer *models.LawyerProfile `json:"lawyer,omitempty"`
	Client *models.ClientProfile `json:"client,omitempty"`
}

type Service struct {
	repo   store.Repository
	hasher Hasher
	access *access.Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo store.Repository, hasher Hasher, eng *access.Engine, log *zap.Logger) *Service {
	return &Service{repo: repo, hasher: hasher, access: eng, log: log, now: time.Now}
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

/* ============================ Registration ============================== */

// Register creates the user and its profile atomically.
func (s *Service) Register(ctx context.Context, r Registration) (*Account, error) {
	r.Email = normalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	switch {
	case !r.Role.Valid():
		return nil, apperr.InvalidArgument("unknown role %q", r.Role)
	case r.Name == "":
		return nil, apperr.InvalidArgument("name is required")
	case r.Email == "":
		return nil, apperr.InvalidArgument("email is required")
	case r.Password == "":
		return nil, apperr.InvalidArgument("password is required")
	}

	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc := &Account{User: models.User{
		ID:           uuid.New(),
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: hash,
		Role:         r.Role,
		Status:       models.UserActive,
		CreatedAt:    s.now(),
	}}

	err = s.repo.WithinTx(ctx, func(tx store.Repository) error {
		if err := tx.CreateUser(ctx, &acc.User); err != nil {
			if store.IsDuplicate(err) {
				return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
			}
			return err
		}
		switch r.Role {
		case models.RoleLawyer:
			d := LawyerDetails{}
			if r.Lawyer != nil {
				d = *r.Lawyer
			}
			p := models.LawyerProfile{
				ID: uuid.New(), UserID: acc.User.ID,
				Specialty: d.Specialty, LicenseNumber: d.LicenseNumber,
				ExperienceYears: d.ExperienceYears, Phone: d.Phone,
			}
			if err := tx.CreateLawyerProfile(ctx, &p); err != nil {
				return err
			}
			acc.ProfileID = p.ID
		case models.RoleClient:
			d := ClientDetails{}
			if r.Client != nil {
				d = *r.Client
			}
			p := models.ClientProfile{
				ID: uuid.New(), UserID: acc.User.ID,
				Address: d.Address, Phone: d.Phone,
				NationalID: d.NationalID, BirthDate: d.BirthDate,
			}
			if err := tx.CreateClientProfile(ctx, &p); err != nil {
				return err
			}
			acc.ProfileID = p.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered",
		zap.String("user_id", acc.User.ID.String()),
		zap.String("role", string(acc.User.Role)))
	return acc, nil
}

// CreateUser is Register on behalf of an administrator, who may create any role.
func (s *Service) CreateUser(ctx context.Context, actor access.Actor, r Registration) (*Account, error) {
	if err := s.access.Require(actor, access.ActionCreate, access.UserResource()); err != nil {
		return nil, err
	}
	return s.Register(ctx, r)
}

// EnsureAdmin seeds an administrator when no user holds the email yet.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.repo.UserByEmail(ctx, normalizeEmail(email)); err == nil {
		return nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := s.Register(ctx, Registration{Name: name, Email: email, Password: password, Role: models.RoleAdmin}); err != nil {
		return err
	}
	s.log.Info("bootstrap administrator created", zap.String("email", normalizeEmail(email)))
	return nil
}

/* ============================ Credentials =============================== */

// Verify checks credentials. Unknown email, wrong password and inactive
// accounts all answer ErrUnauthorized.
func (s *Service) Verify(ctx context.Context, email, password string) (*Account, error) {
	u, err := s.repo.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	if !s.hasher.Compare(u.PasswordHash, password) {
		return nil, apperr.ErrUnauthorized
	}
	if !u.Active() {
		return nil, fmt.Errorf("%w: account inactive", apperr.ErrUnauthorized)
	}
	return s.account(ctx, u)
}

func (s *Service) account(ctx context.Context, u *models.User) (*Account, error) {
	acc := &Account{User: *u}
	switch u.Role {
	case models.RoleLawyer:
		p, err := s.repo.LawyerProfileByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		acc.ProfileID = p.ID
	case models.RoleClient:
		p, err := s.repo.ClientProfileByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		acc.ProfileID = p.ID
	}
	return acc, nil
}

// Account loads a user with its profile id.
func (s *Service) Account(ctx context.Context, userID uuid.UUID) (*Account, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.account(ctx, u)
}

// Profile returns the user with the full role profile.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &Profile{User: *u}
	switch u.Role {
	case models.RoleLawyer:
		if out.Lawyer, err = s.repo.LawyerProfileByUser(ctx, u.ID); err != nil {
			return nil, err
		}
	case models.RoleClient:
		if out.Client, err = s.repo.ClientProfileByUser(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

/* ============================ Administration ============================ */

// SetStatus activates or deactivates an account. Users are never deleted.
func (s *Service) SetStatus(ctx context.Context, actor access.Actor, userID uuid.UUID, status models.UserStatus) error {
	if err := s.access.Require(actor, access.ActionWrite, access.UserResource()); err != nil {
		return err
	}
	if status != models.UserActive && status != models.UserInactive {
		return apperr.InvalidArgument("unknown status %q", status)
	}
	if userID == actor.UserID {
		return apperr.InvalidArgument("cannot change your own status")
	}
	if err := s.repo.UpdateUserStatus(ctx, userID, status); err != nil {
		return err
	}
	s.log.Info("user status changed",
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)),
		zap.String("by", actor.UserID.String()))
	return nil
}

func (s *Service) ListUsers(ctx context.Context, actor access.Actor, f store.UserFilter) ([]models.User, error) {
	if err := s.access.Require(actor, access.ActionRead, access.UserResource()); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, f)
}

// ActiveLawyers is the pool a case or appointment can be assigned to.
func (s *Service) ActiveLawyers(ctx context.Context, actor access.Actor) ([]models.LawyerProfile, error) {
	if err := s.access.Require(actor, access.ActionRead, access.DirectoryResource()); err != nil {
		return nil, err
	}
	return s.repo.ListLawyerProfiles(ctx, true)
}

// ActiveClients is the pool a case or appointment can be opened for.
func (s *Service) ActiveClients(ctx context.Context, actor access.Actor) ([]models.ClientProfile, error) {
	if err := s.access.Require(actor, access.ActionRead, access.DirectoryResource()); err != nil {
		return nil, err
	}
	return s.repo.ListClientProfiles(ctx, true)
}
