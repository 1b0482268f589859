// Package reports aggregates cases for the administrator's dashboard.
package reports

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

type Service struct {
	repo   store.Repository
	access *access.Engine
	log    *zap.Logger
}

func NewService(repo store.Repository, eng *access.Engine, log *zap.Logger) *Service {
	return &Service{repo: repo, access: eng, log: log}
}

/* ================================ Types ================================= */

type Dashboard struct {
	TotalCases  int                      `json:"total_cases"`
	Lawyers     int                      `json:"lawyers"`
	Clients     int                      `json:"clients"`
	ActiveCases int                      `json:"active_cases"` // en_revision + en_proceso
	ByState     map[models.CaseState]int `json:"by_state"`
}

type CaseReport struct {
	From        time.Time                `json:"from"`
	To          time.Time                `json:"to"`
	Total       int                      `json:"total"`
	Won         int                      `json:"won"`
	Lost        int                      `json:"lost"`
	SuccessRate float64                  `json:"success_rate"` // percent, 1 decimal
	ByType      map[string]int           `json:"by_type"`
	ByState     map[models.CaseState]int `json:"by_state"`
	Rows        []models.Case            `json:"rows"`
}

type LawyerStats struct {
	LawyerID    uuid.UUID `json:"lawyer_id"`
	Name        string    `json:"name"`
	Total       int       `json:"total"`
	Won         int       `json:"won"`
	Lost        int       `json:"lost"`
	Active      int       `json:"active"`
	SuccessRate float64   `json:"success_rate"`
}

type MonthTotal struct {
	Month      string `json:"month"` // YYYY-MM
	TotalCents int64  `json:"total_cents"`
}

type Financial struct {
	Cases          int          `json:"cases"` // cases with a budget
	TotalCents     int64        `json:"total_cents"`
	AverageCents   int64        `json:"average_cents"`
	WonIncomeCents int64        `json:"won_income_cents"`
	ByMonth        []MonthTotal `json:"by_month"`
}

// successRate is won / (won + lost) as a percentage, 0 without decided cases.
func successRate(won, lost int) float64 {
	if won+lost == 0 {
		return 0
	}
	return math.Round(float64(won)/float64(won+lost)*1000) / 10
}

func (s *Service) require(actor access.Actor) error {
	return s.access.Require(actor, access.ActionRead, access.ReportResource())
}

/* =============================== Reports ================================ */

// Dashboard counts cases, lawyers and clients.
func (s *Service) Dashboard(ctx context.Context, actor access.Actor) (*Dashboard, error) {
	if err := s.require(actor); err != nil {
		return nil, err
	}
	list, err := s.repo.ListCases(ctx, store.CaseFilter{})
	if err != nil {
		return nil, err
	}
	lawyers, err := s.repo.ListLawyerProfiles(ctx, false)
	if err != nil {
		return nil, err
	}
	clients, err := s.repo.ListClientProfiles(ctx, false)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TotalCases: len(list),
		Lawyers:    len(lawyers),
		Clients:    len(clients),
		ByState:    map[models.CaseState]int{},
	}
	for _, cs := range list {
		d.ByState[cs.State]++
		if cs.State.Active() {
			d.ActiveCases++
		}
	}
	return d, nil
}

// Cases reports the cases whose start date falls in [from, to].
func (s *Service) Cases(ctx context.Context, actor access.Actor, from, to time.Time) (*CaseReport, error) {
	if err := s.require(actor); err != nil {
		return nil, err
	}
	from, to = store.DateOnly(from), store.DateOnly(to)
	if to.Before(from) {
		return nil, apperr.InvalidArgument("range end is before its start")
	}
	list, err := s.repo.ListCases(ctx, store.CaseFilter{StartFrom: &from, StartTo: &to})
	if err != nil {
		return nil, err
	}

	r := &CaseReport{
		From:    from,
		To:      to,
		Total:   len(list),
		Rows:    list,
		ByType:  map[string]int{},
		ByState: map[models.CaseState]int{},
	}
	for _, cs := range list {
		r.ByType[cs.Type]++
		r.ByState[cs.State]++
	}
	r.Won, r.Lost = r.ByState[models.CaseWon], r.ByState[models.CaseLost]
	r.SuccessRate = successRate(r.Won, r.Lost)
	return r, nil
}

// Lawyers reports per-lawyer outcomes, busiest first. Lawyers without cases are included.
func (s *Service) Lawyers(ctx context.Context, actor access.Actor) ([]LawyerStats, error) {
	if err := s.require(actor); err != nil {
		return nil, err
	}
	lawyers, err := s.repo.ListLawyerProfiles(ctx, false)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListCases(ctx, store.CaseFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*LawyerStats, len(lawyers))
	out := make([]LawyerStats, len(lawyers))
	for i, lp := range lawyers {
		out[i] = LawyerStats{LawyerID: lp.ID, Name: lp.User.Name}
		byID[lp.ID] = &out[i]
	}
	for _, cs := range list {
		st, ok := byID[cs.LawyerID]
		if !ok {
			continue
		}
		st.Total++
		switch {
		case cs.State == models.CaseWon:
			st.Won++
		case cs.State == models.CaseLost:
			st.Lost++
		case cs.State.Active():
			st.Active++
		}
	}
	for i := range out {
		out[i].SuccessRate = successRate(out[i].Won, out[i].Lost)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Financial summarises budgets. Cases without a budget are left out.
func (s *Service) Financial(ctx context.Context, actor access.Actor) (*Financial, error) {
	if err := s.require(actor); err != nil {
		return nil, err
	}
	list, err := s.repo.ListCases(ctx, store.CaseFilter{})
	if err != nil {
		return nil, err
	}

	f := &Financial{ByMonth: []MonthTotal{}}
	months := map[string]int64{}
	for _, cs := range list {
		if cs.BudgetCents == nil {
			continue
		}
		b := *cs.BudgetCents
		f.Cases++
		f.TotalCents += b
		if cs.State == models.CaseWon {
			f.WonIncomeCents += b
		}
		months[cs.StartDate.Format("2006-01")] += b
	}
	if f.Cases > 0 {
		f.AverageCents = f.TotalCents / int64(f.Cases)
	}
	for m, total := range months {
		f.ByMonth = append(f.ByMonth, MonthTotal{Month: m, TotalCents: total})
	}
	sort.Slice(f.ByMonth, func(i, j int) bool { return f.ByMonth[i].Month < f.ByMonth[j].Month })
	return f, nil
}
