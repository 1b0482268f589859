package gormstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/database"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

// openTestDB loads TEST_DATABASE_URL, opens a real Postgres connection,
// runs migrations, and truncates every table after the test.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	documents,
	messages,
	appointments,
	case_histories,
	cases,
	lawyer_profiles,
	client_profiles,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})
	return db
}

func seedLawyer(t *testing.T, s *Store) models.LawyerProfile {
	t.Helper()
	ctx := context.Background()
	u := models.User{Name: "Lawyer", Email: "l_" + uuid.NewString()[:8] + "@x.com", Role: models.RoleLawyer, PasswordHash: "x"}
	if err := s.CreateUser(ctx, &u); err != nil {
		t.Fatal(err)
	}
	p := models.LawyerProfile{UserID: u.ID, Specialty: "Civil"}
	if err := s.CreateLawyerProfile(ctx, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

/* ============================================================================
   Tests
   ============================================================================ */

func Test_CreateUser_DuplicateEmail_IsErrDuplicate(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()

	u := models.User{Name: "A", Email: "dup@x.com", Role: models.RoleClient, PasswordHash: "x"}
	if err := s.CreateUser(ctx, &u); err != nil {
		t.Fatal(err)
	}
	again := models.User{Name: "B", Email: "dup@x.com", Role: models.RoleClient, PasswordHash: "x"}
	if err := s.CreateUser(ctx, &again); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func Test_CaseByID_Missing_IsNotFound(t *testing.T) {
	s := New(openTestDB(t))
	if _, err := s.CaseByID(context.Background(), uuid.New(), false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// The partial unique index only covers non-cancelled appointments.
func Test_AppointmentSlotIndex_IgnoresCancelled(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	lp := seedLawyer(t, s)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	a := models.Appointment{LawyerID: lp.ID, ClientID: uuid.New(), Date: date, Time: "10:00", Motive: "m", State: models.AppointmentScheduled}
	if err := s.CreateAppointment(ctx, &a); err != nil {
		t.Fatal(err)
	}
	b := models.Appointment{LawyerID: lp.ID, ClientID: uuid.New(), Date: date, Time: "10:00", Motive: "m", State: models.AppointmentScheduled}
	if err := s.CreateAppointment(ctx, &b); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	if err := s.UpdateAppointmentState(ctx, a.ID, models.AppointmentCancelled, time.Now()); err != nil {
		t.Fatal(err)
	}
	b.ID = uuid.Nil
	if err := s.CreateAppointment(ctx, &b); err != nil {
		t.Fatalf("slot should be free after cancel: %v", err)
	}
}

func Test_ConcurrentBooking_OneWinner(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	lp := seedLawyer(t, s)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var wins, dups int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateAppointment(ctx, &models.Appointment{
				LawyerID: lp.ID, ClientID: uuid.New(), Date: date, Time: "10:00",
				Motive: "m", State: models.AppointmentScheduled,
			})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, store.ErrDuplicate):
				atomic.AddInt32(&dups, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || dups != 7 {
		t.Fatalf("want 1 winner and 7 duplicates, got %d / %d", wins, dups)
	}
}

func Test_DocumentVersionIndex_And_Max(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	caseID := uuid.New()

	for v := 1; v <= 2; v++ {
		d := models.Document{CaseID: caseID, Filename: "contract.pdf", Version: v, StoragePath: "p", DocumentType: "Contrato", UploadedBy: uuid.New(), UploadedAt: time.Now()}
		if err := s.CreateDocument(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}
	dup := models.Document{CaseID: caseID, Filename: "contract.pdf", Version: 2, StoragePath: "p", DocumentType: "Contrato", UploadedBy: uuid.New(), UploadedAt: time.Now()}
	if err := s.CreateDocument(ctx, &dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	v, err := s.MaxDocumentVersion(ctx, caseID, "contract.pdf")
	if err != nil || v != 2 {
		t.Fatalf("want 2, got %d (%v)", v, err)
	}
}

func Test_WithinTx_RollsBack(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Repository) error {
		u := models.User{Name: "T", Email: "tx@x.com", Role: models.RoleClient, PasswordHash: "x"}
		if err := tx.CreateUser(ctx, &u); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, err := s.UserByEmail(ctx, "tx@x.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("user should not exist, got %v", err)
	}
}

func Test_ListLawyerProfiles_ActiveOnly(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	active := seedLawyer(t, s)
	inactive := seedLawyer(t, s)
	if err := s.UpdateUserStatus(ctx, inactive.UserID, models.UserInactive); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListLawyerProfiles(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("want only the active lawyer, got %#v", got)
	}
	if got[0].User.Email == "" {
		t.Fatal("joined user should be populated")
	}
}

func Test_ListCases_EqualCreatedAt_OrderedByID(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	lawyer := uuid.New()

	for i := 0; i < 6; i++ {
		c := models.Case{
			ClientID: uuid.New(), LawyerID: lawyer, Title: "t", Type: "Otro",
			State: models.CasePending, StartDate: at, CreatedAt: at, UpdatedAt: at,
		}
		if err := s.CreateCase(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ListCases(ctx, store.CaseFilter{LawyerID: lawyer})
	if err != nil || len(got) != 6 {
		t.Fatalf("want 6 cases, got %d (%v)", len(got), err)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID.String() >= got[i].ID.String() {
			t.Fatalf("ties must be ordered by id, got %s before %s", got[i-1].ID, got[i].ID)
		}
	}
}
