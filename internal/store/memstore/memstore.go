// Package memstore is an in-memory store.Repository used for development and tests.
// It enforces the same unique keys as the Postgres schema. A transaction holds
// the store mutex for its whole duration and restores a snapshot on error.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

type dataset struct {
	users        map[uuid.UUID]models.User
	lawyers      map[uuid.UUID]models.LawyerProfile
	clients      map[uuid.UUID]models.ClientProfile
	cases        map[uuid.UUID]models.Case
	history      []models.CaseHistory
	appointments map[uuid.UUID]models.Appointment
	messages     map[uuid.UUID]models.Message
	documents    map[uuid.UUID]models.Document
}

func newDataset() *dataset {
	return &dataset{
		users:        map[uuid.UUID]models.User{},
		lawyers:      map[uuid.UUID]models.LawyerProfile{},
		clients:      map[uuid.UUID]models.ClientProfile{},
		cases:        map[uuid.UUID]models.Case{},
		appointments: map[uuid.UUID]models.Appointment{},
		messages:     map[uuid.UUID]models.Message{},
		documents:    map[uuid.UUID]models.Document{},
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		users:        cloneMap(d.users),
		lawyers:      cloneMap(d.lawyers),
		clients:      cloneMap(d.clients),
		cases:        cloneMap(d.cases),
		history:      slices.Clone(d.history),
		appointments: cloneMap(d.appointments),
		messages:     cloneMap(d.messages),
		documents:    cloneMap(d.documents),
	}
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store implements store.Repository in memory.
type Store struct {
	mu   *sync.Mutex
	d    *dataset
	inTx bool
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, d: newDataset()}
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.d.clone()
	defer func() {
		if r := recover(); r != nil {
			*s.d = *snap
			panic(r)
		}
	}()
	if err = fn(&Store{mu: s.mu, d: s.d, inTx: true}); err != nil {
		*s.d = *snap
	}
	return err
}

/* ================================ Users ================================= */

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	defer s.lock()()
	email := strings.ToLower(u.Email)
	for _, x := range s.d.users {
		if strings.ToLower(x.Email) == email {
			return store.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, ok := s.d.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.d.users[u.ID] = *u
	return nil
}

func (s *Store) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	defer s.lock()()
	u, ok := s.d.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return &u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	defer s.lock()()
	email = strings.ToLower(email)
	for _, u := range s.d.users {
		if strings.ToLower(u.Email) == email {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (s *Store) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.UserByID(ctx, id)
}

func (s *Store) UpdateUserStatus(_ context.Context, id uuid.UUID, status models.UserStatus) error {
	defer s.lock()()
	u, ok := s.d.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.Status = status
	s.d.users[id] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context, f store.UserFilter) ([]models.User, error) {
	defer s.lock()()
	out := make([]models.User, 0)
	for _, u := range s.d.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if f.ExcludeID != uuid.Nil && u.ID == f.ExcludeID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

/* =============================== Profiles =============================== */

func (s *Store) CreateLawyerProfile(_ context.Context, p *models.LawyerProfile) error {
	defer s.lock()()
	if _, ok := s.d.users[p.UserID]; !ok {
		return apperr.NotFound("user")
	}
	for _, x := range s.d.lawyers {
		if x.UserID == p.UserID {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored := *p
	stored.User = models.User{}
	s.d.lawyers[p.ID] = stored
	return nil
}

func (s *Store) CreateClientProfile(_ context.Context, p *models.ClientProfile) error {
	defer s.lock()()
	if _, ok := s.d.users[p.UserID]; !ok {
		return apperr.NotFound("user")
	}
	for _, x := range s.d.clients {
		if x.UserID == p.UserID {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored := *p
	stored.User = models.User{}
	s.d.clients[p.ID] = stored
	return nil
}

func (s *Store) withLawyerUser(p models.LawyerProfile) *models.LawyerProfile {
	p.User = s.d.users[p.UserID]
	return &p
}

func (s *Store) withClientUser(p models.ClientProfile) *models.ClientProfile {
	p.User = s.d.users[p.UserID]
	return &p
}

func (s *Store) LawyerProfileByID(_ context.Context, id uuid.UUID) (*models.LawyerProfile, error) {
	defer s.lock()()
	p, ok := s.d.lawyers[id]
	if !ok {
		return nil, apperr.NotFound("lawyer profile")
	}
	return s.withLawyerUser(p), nil
}

func (s *Store) LawyerProfileByUser(_ context.Context, userID uuid.UUID) (*models.LawyerProfile, error) {
	defer s.lock()()
	for _, p := range s.d.lawyers {
		if p.UserID == userID {
			return s.withLawyerUser(p), nil
		}
	}
	return nil, apperr.NotFound("lawyer profile")
}

func (s *Store) ClientProfileByID(_ context.Context, id uuid.UUID) (*models.ClientProfile, error) {
	defer s.lock()()
	p, ok := s.d.clients[id]
	if !ok {
		return nil, apperr.NotFound("client profile")
	}
	return s.withClientUser(p), nil
}

func (s *Store) ClientProfileByUser(_ context.Context, userID uuid.UUID) (*models.ClientProfile, error) {
	defer s.lock()()
	for _, p := range s.d.clients {
		if p.UserID == userID {
			return s.withClientUser(p), nil
		}
	}
	return nil, apperr.NotFound("client profile")
}

func (s *Store) ListLawyerProfiles(_ context.Context, activeOnly bool) ([]models.LawyerProfile, error) {
	defer s.lock()()
	out := make([]models.LawyerProfile, 0, len(s.d.lawyers))
	for _, p := range s.d.lawyers {
		lp := s.withLawyerUser(p)
		if activeOnly && !lp.User.Active() {
			continue
		}
		out = append(out, *lp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.Name < out[j].User.Name })
	return out, nil
}

func (s *Store) ListClientProfiles(_ context.Context, activeOnly bool) ([]models.ClientProfile, error) {
	defer s.lock()()
	out := make([]models.ClientProfile, 0, len(s.d.clients))
	for _, p := range s.d.clients {
		cp := s.withClientUser(p)
		if activeOnly && !cp.User.Active() {
			continue
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.Name < out[j].User.Name })
	return out, nil
}

/* ================================= Cases ================================ */

func (s *Store) CreateCase(_ context.Context, c *models.Case) error {
	defer s.lock()()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, ok := s.d.cases[c.ID]; ok {
		return store.ErrDuplicate
	}
	s.d.cases[c.ID] = *c
	return nil
}

func (s *Store) CaseByID(_ context.Context, id uuid.UUID, _ bool) (*models.Case, error) {
	defer s.lock()()
	c, ok := s.d.cases[id]
	if !ok {
		return nil, apperr.NotFound("case")
	}
	return &c, nil
}

func (s *Store) UpdateCaseState(_ context.Context, id uuid.UUID, state models.CaseState, at time.Time) error {
	defer s.lock()()
	c, ok := s.d.cases[id]
	if !ok {
		return apperr.NotFound("case")
	}
	c.State = state
	c.UpdatedAt = at
	s.d.cases[id] = c
	return nil
}

func (s *Store) ListCases(_ context.Context, f store.CaseFilter) ([]models.Case, error) {
	defer s.lock()()
	out := make([]models.Case, 0)
	for _, c := range s.d.cases {
		if f.ClientID != uuid.Nil && c.ClientID != f.ClientID {
			continue
		}
		if f.LawyerID != uuid.Nil && c.LawyerID != f.LawyerID {
			continue
		}
		if len(f.States) > 0 && !slices.Contains(f.States, c.State) {
			continue
		}
		if f.StartFrom != nil && c.StartDate.Before(store.DateOnly(*f.StartFrom)) {
			continue
		}
		if f.StartTo != nil && c.StartDate.After(store.DateOnly(*f.StartTo)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) AppendCaseHistory(_ context.Context, h *models.CaseHistory) error {
	defer s.lock()()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	s.d.history = append(s.d.history, *h)
	return nil
}

func (s *Store) ListCaseHistory(_ context.Context, caseID uuid.UUID) ([]models.CaseHistory, error) {
	defer s.lock()()
	out := make([]models.CaseHistory, 0)
	for _, h := range s.d.history {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	return out, nil
}

/* ============================= Appointments ============================= */

func sameSlot(a models.Appointment, lawyerID uuid.UUID, date time.Time, hhmm string) bool {
	return a.LawyerID == lawyerID &&
		a.Date.Format(time.DateOnly) == date.Format(time.DateOnly) &&
		a.Time == hhmm &&
		a.State != models.AppointmentCancelled
}

func (s *Store) slotTaken(lawyerID uuid.UUID, date time.Time, hhmm string) bool {
	for _, a := range s.d.appointments {
		if sameSlot(a, lawyerID, date, hhmm) {
			return true
		}
	}
	return false
}

func (s *Store) CreateAppointment(_ context.Context, a *models.Appointment) error {
	defer s.lock()()
	if a.State != models.AppointmentCancelled && s.slotTaken(a.LawyerID, a.Date, a.Time) {
		return store.ErrDuplicate
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.d.appointments[a.ID] = *a
	return nil
}

func (s *Store) AppointmentByID(_ context.Context, id uuid.UUID) (*models.Appointment, error) {
	defer s.lock()()
	a, ok := s.d.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return &a, nil
}

func (s *Store) SlotTaken(_ context.Context, lawyerID uuid.UUID, date time.Time, hhmm string) (bool, error) {
	defer s.lock()()
	return s.slotTaken(lawyerID, date, hhmm), nil
}

func (s *Store) UpdateAppointmentState(_ context.Context, id uuid.UUID, state models.AppointmentState, at time.Time) error {
	defer s.lock()()
	a, ok := s.d.appointments[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	a.State = state
	a.UpdatedAt = at
	s.d.appointments[id] = a
	return nil
}

func (s *Store) ListAppointments(_ context.Context, f store.AppointmentFilter) ([]models.Appointment, error) {
	defer s.lock()()
	out := make([]models.Appointment, 0)
	for _, a := range s.d.appointments {
		if f.LawyerID != uuid.Nil && a.LawyerID != f.LawyerID {
			continue
		}
		if f.ClientID != uuid.Nil && a.ClientID != f.ClientID {
			continue
		}
		if f.FromDate != nil && a.Date.Before(store.DateOnly(*f.FromDate)) {
			continue
		}
		if len(f.States) > 0 && !slices.Contains(f.States, a.State) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

/* =============================== Messages =============================== */

func (s *Store) CreateMessage(_ context.Context, m *models.Message) error {
	defer s.lock()()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.d.messages[m.ID] = *m
	return nil
}

func (s *Store) MessageByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	defer s.lock()()
	m, ok := s.d.messages[id]
	if !ok {
		return nil, apperr.NotFound("message")
	}
	return &m, nil
}

func (s *Store) MarkMessageRead(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	m, ok := s.d.messages[id]
	if !ok {
		return apperr.NotFound("message")
	}
	m.Read = true
	s.d.messages[id] = m
	return nil
}

func (s *Store) ListInbox(_ context.Context, recipientID uuid.UUID) ([]models.Message, error) {
	defer s.lock()()
	out := make([]models.Message, 0)
	for _, m := range s.d.messages {
		if m.RecipientID == recipientID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

/* =============================== Documents ============================== */

func (s *Store) CreateDocument(_ context.Context, d *models.Document) error {
	defer s.lock()()
	for _, x := range s.d.documents {
		if x.CaseID == d.CaseID && x.Filename == d.Filename && x.Version == d.Version {
			return store.ErrDuplicate
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.d.documents[d.ID] = *d
	return nil
}

func (s *Store) MaxDocumentVersion(_ context.Context, caseID uuid.UUID, filename string) (int, error) {
	defer s.lock()()
	top := 0
	for _, x := range s.d.documents {
		if x.CaseID == caseID && x.Filename == filename && x.Version > top {
			top = x.Version
		}
	}
	return top, nil
}

func (s *Store) DocumentByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	defer s.lock()()
	d, ok := s.d.documents[id]
	if !ok {
		return nil, apperr.NotFound("document")
	}
	return &d, nil
}

func (s *Store) ListDocuments(_ context.Context, caseID uuid.UUID) ([]models.Document, error) {
	defer s.lock()()
	out := make([]models.Document, 0)
	for _, d := range s.d.documents {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}
