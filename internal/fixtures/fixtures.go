// Package fixtures seeds users, profiles and cases into a repository for tests.
package fixtures

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

func email(prefix string) string {
	return strings.ToLower(prefix) + "_" + uuid.NewString()[:8] + "@x.com"
}

func user(tb testing.TB, repo store.Repository, name string, role models.Role) models.User {
	tb.Helper()
	u := models.User{
		ID: uuid.New(), Name: name, Email: email(string(role)),
		PasswordHash: "x", Role: role, Status: models.UserActive, CreatedAt: time.Now(),
	}
	if err := repo.CreateUser(context.Background(), &u); err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// Admin seeds an active administrator.
func Admin(tb testing.TB, repo store.Repository) access.Actor {
	tb.Helper()
	u := user(tb, repo, "Admin", models.RoleAdmin)
	return access.Actor{UserID: u.ID, Role: u.Role}
}

// Lawyer seeds an active lawyer with a profile.
func Lawyer(tb testing.TB, repo store.Repository, name string) access.Actor {
	tb.Helper()
	u := user(tb, repo, name, models.RoleLawyer)
	p := models.LawyerProfile{ID: uuid.New(), UserID: u.ID, Specialty: "Derecho Civil", LicenseNumber: "CAL-" + name}
	if err := repo.CreateLawyerProfile(context.Background(), &p); err != nil {
		tb.Fatalf("seed lawyer profile: %v", err)
	}
	return access.Actor{UserID: u.ID, Role: u.Role, ProfileID: p.ID}
}

// Client seeds an active client with a profile.
func Client(tb testing.TB, repo store.Repository, name string) access.Actor {
	tb.Helper()
	u := user(tb, repo, name, models.RoleClient)
	p := models.ClientProfile{ID: uuid.New(), UserID: u.ID, NationalID: "45678912"}
	if err := repo.CreateClientProfile(context.Background(), &p); err != nil {
		tb.Fatalf("seed client profile: %v", err)
	}
	return access.Actor{UserID: u.ID, Role: u.Role, ProfileID: p.ID}
}

// Deactivate marks the actor's account inactive.
func Deactivate(tb testing.TB, repo store.Repository, a access.Actor) {
	tb.Helper()
	if err := repo.UpdateUserStatus(context.Background(), a.UserID, models.UserInactive); err != nil {
		tb.Fatalf("deactivate: %v", err)
	}
}

// Case inserts a case between lawyer and client directly, bypassing the lifecycle service.
func Case(tb testing.TB, repo store.Repository, lawyer, client access.Actor, state models.CaseState) models.Case {
	tb.Helper()
	now := time.Now()
	c := models.Case{
		ID: uuid.New(), Title: "Case " + uuid.NewString()[:6], Type: "Derecho Civil",
		State: state, ClientID: client.ProfileID, LawyerID: lawyer.ProfileID,
		StartDate: store.DateOnly(now), CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.CreateCase(context.Background(), &c); err != nil {
		tb.Fatalf("seed case: %v", err)
	}
	return c
}
