package cases

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/metrics"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
	"github.com/aldoetobex/bufete-backend/pkg/utils"
)

/* ============================== State graph ============================= */

// edges lists the ordinary transitions. Terminal states have none.
var edges = map[models.CaseState][]models.CaseState{
	models.CasePending:    {models.CaseInReview, models.CaseInProgress},
	models.CaseInReview:   {models.CaseInProgress},
	models.CaseInProgress: {models.CaseWon, models.CaseLost, models.CaseCompleted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to models.CaseState) bool {
	return slices.Contains(edges[from], to)
}

// NextStates lists the states the actor could move a case to from s.
func NextStates(s models.CaseState, role models.Role) []models.CaseState {
	if s.Terminal() {
		return []models.CaseState{}
	}
	out := slices.Clone(edges[s])
	if role == models.RoleAdmin {
		for _, t := range []models.CaseState{models.CaseWon, models.CaseLost, models.CaseCompleted} {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

/* ================================ Service =============================== */

type Service struct {
	repo   store.Repository
	access *access.Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo store.Repository, eng *access.Engine, log *zap.Logger) *Service {
	return &Service{repo: repo, access: eng, log: log, now: time.Now}
}

// AssignRequest opens a case between one client profile and one lawyer profile.
type AssignRequest struct {
	ClientID    uuid.UUID
	LawyerID    uuid.UUID
	Title       string
	Type        string
	Description string
	StartDate   time.Time // zero means today
	BudgetCents *int64
}

// Assign creates a case in pendiente. Both parties must be active at the
// moment of insertion; their user rows stay share-locked until commit.
func (s *Service) Assign(ctx context.Context, actor access.Actor, req AssignRequest) (*models.Case, error) {
	if err := s.access.Require(actor, access.ActionCreate, access.NewCaseResource(req.LawyerID, req.ClientID)); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Type = strings.TrimSpace(req.Type)
	switch {
	case req.Title == "":
		return nil, apperr.InvalidArgument("title is required")
	case req.Type == "":
		return nil, apperr.InvalidArgument("type is required")
	case req.BudgetCents != nil && *req.BudgetCents < 0:
		return nil, apperr.InvalidArgument("budget must be zero or positive")
	}

	now := s.now()
	start := req.StartDate
	if start.IsZero() {
		start = now
	}
	cs := &models.Case{
		ID:          uuid.New(),
		Title:       req.Title,
		Type:        req.Type,
		Description: strings.TrimSpace(req.Description),
		State:       models.CasePending,
		ClientID:    req.ClientID,
		LawyerID:    req.LawyerID,
		StartDate:   store.DateOnly(start),
		BudgetCents: req.BudgetCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		lp, err := tx.LawyerProfileByID(ctx, req.LawyerID)
		if err != nil {
			return err
		}
		cp, err := tx.ClientProfileByID(ctx, req.ClientID)
		if err != nil {
			return err
		}
		lu, err := tx.LockUser(ctx, lp.UserID)
		if err != nil {
			return err
		}
		if !lu.Active() {
			return apperr.InvalidArgument("lawyer is inactive")
		}
		cu, err := tx.LockUser(ctx, cp.UserID)
		if err != nil {
			return err
		}
		if !cu.Active() {
			return apperr.InvalidArgument("client is inactive")
		}

		if err := tx.CreateCase(ctx, cs); err != nil {
			return err
		}
		return utils.LogCaseHistory(ctx, tx, cs.ID, actor.UserID, utils.ActionCreated, "", models.CasePending, "", now)
	})
	if err != nil {
		return nil, err
	}

	metrics.CasesCreated.Inc()
	s.log.Info("case created",
		zap.String("case_id", cs.ID.String()),
		zap.String("lawyer_id", cs.LawyerID.String()),
		zap.String("client_id", cs.ClientID.String()),
		zap.String("by", actor.UserID.String()))
	return cs, nil
}

// Transition moves a case along the lifecycle graph. The row is locked for
// the duration of the check and the write, and the history entry commits
// with the state change.
//
// Administrators may additionally force any non-terminal case to a terminal state.
func (s *Service) Transition(ctx context.Context, actor access.Actor, caseID uuid.UUID, to models.CaseState, reason string) (*models.Case, error) {
	var out *models.Case
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		cs, err := tx.CaseByID(ctx, caseID, true)
		if err != nil {
			return err
		}
		if err := s.access.Require(actor, access.ActionWrite, access.CaseResource(cs)); err != nil {
			return err
		}
		if !to.Valid() {
			return apperr.InvalidArgument("unknown state %q", to)
		}
		if cs.State.Terminal() {
			return fmt.Errorf("%w: case is %s", apperr.ErrAlreadyTerminal, cs.State)
		}

		action := utils.ActionTransitioned
		if !CanTransition(cs.State, to) {
			if !actor.IsAdmin() || !to.Terminal() {
				return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, cs.State, to)
			}
			action = utils.ActionForcedClose
		}

		now := s.now()
		if err := tx.UpdateCaseState(ctx, cs.ID, to, now); err != nil {
			return err
		}
		if err := utils.LogCaseHistory(ctx, tx, cs.ID, actor.UserID, action, cs.State, to, reason, now); err != nil {
			return err
		}

		from := cs.State
		cs.State, cs.UpdatedAt = to, now
		out = cs
		s.log.Info("case transitioned",
			zap.String("case_id", cs.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("action", action),
			zap.String("by", actor.UserID.String()))
		return nil
	})
	label := string(to)
	if !to.Valid() {
		label = "unknown"
	}
	metrics.CaseTransitions.WithLabelValues(label, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a case the actor may read.
func (s *Service) Get(ctx context.Context, actor access.Actor, caseID uuid.UUID) (*models.Case, error) {
	cs, err := s.repo.CaseByID(ctx, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(actor, access.ActionRead, access.CaseResource(cs)); err != nil {
		return nil, err
	}
	return cs, nil
}

// ListFor returns the cases visible to the actor, newest first:
// every case for administrators, assigned cases for lawyers, own cases for clients.
func (s *Service) ListFor(ctx context.Context, actor access.Actor, states []models.CaseState) ([]models.Case, error) {
	f := store.CaseFilter{States: states}
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
	return s.repo.ListCases(ctx, f)
}

// History returns the audit trail of a case the actor may read, oldest first.
func (s *Service) History(ctx context.Context, actor access.Actor, caseID uuid.UUID) ([]models.CaseHistory, error) {
	if _, err := s.Get(ctx, actor, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListCaseHistory(ctx, caseID)
}

// ClientsOf returns the distinct clients across the lawyer's cases.
func (s *Service) ClientsOf(ctx context.Context, actor access.Actor) ([]models.ClientProfile, error) {
	if !actor.IsLawyer() || actor.ProfileID == uuid.Nil {
		return nil, apperr.Forbidden("lawyers only")
	}
	list, err := s.repo.ListCases(ctx, store.CaseFilter{LawyerID: actor.ProfileID})
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	out := make([]models.ClientProfile, 0)
	for _, cs := range list {
		if seen[cs.ClientID] {
			continue
		}
		seen[cs.ClientID] = true
		cp, err := s.repo.ClientProfileByID(ctx, cs.ClientID)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	slices.SortFunc(out, func(a, b models.ClientProfile) int { return strings.Compare(a.User.Name, b.User.Name) })
	return out, nil
}
