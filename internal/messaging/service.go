// Package messaging decides who may write to whom and serves each user's inbox.
package messaging

import (
	"context"
	"errors"
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
	"github.com/aldoetobex/bufete-backend/pkg/sanitize"
)

const previewLen = 80

type Service struct {
	repo   store.Repository
	access *access.Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo store.Repository, eng *access.Engine, log *zap.Logger) *Service {
	return &Service{repo: repo, access: eng, log: log, now: time.Now}
}

// SendRequest is a message from the actor.
type SendRequest struct {
	RecipientID uuid.UUID // user id
	CaseID      *uuid.UUID
	Subject     string
	Body        string
}

// InboxItem is a received message with a short body preview.
type InboxItem struct {
	models.Message
	SenderName string `json:"sender_name"`
	Preview    string `json:"preview"`
}

// Inbox is the recipient's read model, most recent first.
type Inbox struct {
	Unread int         `json:"unread"`
	Items  []InboxItem `json:"items"`
}

/* ============================== Recipients ============================== */

// Recipients returns the users the actor may write to, sorted by name.
// Clients reach the distinct lawyers of their own cases; lawyers and
// administrators reach every active user except themselves.
func (s *Service) Recipients(ctx context.Context, actor access.Actor) ([]models.User, error) {
	switch actor.Role {
	case models.RoleClient:
		if actor.ProfileID == uuid.Nil {
			return nil, apperr.Forbidden("client profile missing")
		}
		list, err := s.repo.ListCases(ctx, store.CaseFilter{ClientID: actor.ProfileID})
		if err != nil {
			return nil, err
		}
		seen := map[uuid.UUID]bool{}
		out := make([]models.User, 0)
		for _, cs := range list {
			if seen[cs.LawyerID] {
				continue
			}
			seen[cs.LawyerID] = true
			lp, err := s.repo.LawyerProfileByID(ctx, cs.LawyerID)
			if err != nil {
				return nil, err
			}
			out = append(out, lp.User)
		}
		slices.SortFunc(out, func(a, b models.User) int { return strings.Compare(a.Name, b.Name) })
		return out, nil

	case models.RoleLawyer, models.RoleAdmin:
		return s.repo.ListUsers(ctx, store.UserFilter{Status: models.UserActive, ExcludeID: actor.UserID})
	}
	return nil, apperr.Forbidden("not authorized")
}

func (s *Service) eligible(ctx context.Context, actor access.Actor, recipientID uuid.UUID) (bool, error) {
	if recipientID == actor.UserID {
		return false, nil
	}
	list, err := s.Recipients(ctx, actor)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(list, func(u models.User) bool { return u.ID == recipientID }), nil
}

/* ================================= Send ================================= */

// Send stores a message after checking, in order: the body, the recipient
// eligibility and, when a case is given, that the case links both users.
func (s *Service) Send(ctx context.Context, actor access.Actor, req SendRequest) (*models.Message, error) {
	m, err := s.send(ctx, actor, req)
	outcome := metrics.Outcome(err)
	if errors.Is(err, apperr.ErrInvalidRecipient) {
		outcome = "invalid_recipient"
	}
	metrics.MessagesSent.WithLabelValues(string(actor.Role), outcome).Inc()
	return m, err
}

func (s *Service) send(ctx context.Context, actor access.Actor, req SendRequest) (*models.Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperr.InvalidArgument("body is required")
	}

	ok, err := s.eligible(ctx, actor, req.RecipientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Warn("message to ineligible recipient",
			zap.String("sender", actor.UserID.String()),
			zap.String("recipient", req.RecipientID.String()))
		return nil, apperr.ErrInvalidRecipient
	}

	if req.CaseID != nil {
		if err := s.caseLinks(ctx, *req.CaseID, actor.UserID, req.RecipientID); err != nil {
			return nil, err
		}
	}

	m := &models.Message{
		ID:          uuid.New(),
		SenderID:    actor.UserID,
		RecipientID: req.RecipientID,
		CaseID:      req.CaseID,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        body,
		SentAt:      s.now(),
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.log.Info("message sent",
		zap.String("message_id", m.ID.String()),
		zap.String("sender", m.SenderID.String()),
		zap.String("recipient", m.RecipientID.String()))
	return m, nil
}

// caseLinks accepts a case when each user is one of its parties or an administrator.
func (s *Service) caseLinks(ctx context.Context, caseID, senderID, recipientID uuid.UUID) error {
	cs, err := s.repo.CaseByID(ctx, caseID, false)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.InvalidArgument("case %s does not exist", caseID)
	}
	if err != nil {
		return err
	}
	lp, err := s.repo.LawyerProfileByID(ctx, cs.LawyerID)
	if err != nil {
		return err
	}
	cp, err := s.repo.ClientProfileByID(ctx, cs.ClientID)
	if err != nil {
		return err
	}

	linked := func(id uuid.UUID) (bool, error) {
		if id == lp.UserID || id == cp.UserID {
			return true, nil
		}
		u, err := s.repo.UserByID(ctx, id)
		if err != nil {
			return false, err
		}
		return u.Role == models.RoleAdmin, nil
	}
	for _, id := range []uuid.UUID{senderID, recipientID} {
		ok, err := linked(id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidArgument("case does not link sender and recipient")
		}
	}
	return nil
}

/* ================================= Inbox ================================ */

// Inbox returns the messages addressed to the actor, most recent first.
func (s *Service) Inbox(ctx context.Context, actor access.Actor) (*Inbox, error) {
	list, err := s.repo.ListInbox(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	names := map[uuid.UUID]string{}
	out := &Inbox{Items: make([]InboxItem, 0, len(list))}
	for _, m := range list {
		name, ok := names[m.SenderID]
		if !ok {
			if u, err := s.repo.UserByID(ctx, m.SenderID); err == nil {
				name = u.Name
			}
			names[m.SenderID] = name
		}
		if !m.Read {
			out.Unread++
		}
		out.Items = append(out.Items, InboxItem{
			Message:    m,
			SenderName: name,
			Preview:    sanitize.Summary(m.Body, previewLen),
		})
	}
	return out, nil
}

// Get returns one message the actor may read: a participant, or a party of its case.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Message, error) {
	m, err := s.repo.MessageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var cs *models.Case
	if m.CaseID != nil {
		if c, err := s.repo.CaseByID(ctx, *m.CaseID, false); err == nil {
			cs = c
		}
	}
	if err := s.access.Require(actor, access.ActionRead, access.MessageResource(m, cs)); err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRead sets the read flag. Only the recipient may do so; repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	m, err := s.repo.MessageByID(ctx, id)
	if err != nil {
		return err
	}
	if m.RecipientID != actor.UserID {
		return apperr.Forbidden("only the recipient may mark a message as read")
	}
	if m.Read {
		return nil
	}
	return s.repo.MarkMessageRead(ctx, id)
}
