// Package access decides who may read, write or create which case-scoped record.
//
// Decide is a pure function over the actor and the ownership fields of the
// target; it never touches storage. Engine wraps it with logging and metrics
// and turns a denial into apperr.ErrForbidden for callers that want an error.
package access

import (
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/metrics"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

/* ================================ Types ================================= */

// Actor is the authenticated identity an operation runs under.
// ProfileID is the lawyer or client profile id; it is uuid.Nil for administrators.
type Actor struct {
	UserID    uuid.UUID
	Role      models.Role
	ProfileID uuid.UUID
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }
func (a Actor) IsLawyer() bool { return a.Role == models.RoleLawyer }
func (a Actor) IsClient() bool { return a.Role == models.RoleClient }

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
)

type Kind string

const (
	KindCase        Kind = "case"
	KindAppointment Kind = "appointment"
	KindDocument    Kind = "document"
	KindMessage     Kind = "message"
	KindDirectory   Kind = "directory"
	KindUser        Kind = "user"
	KindReport      Kind = "report"
)

// Resource carries only the ownership fields a decision needs.
type Resource struct {
	Kind         Kind
	LawyerID     uuid.UUID   // lawyer profile owning the record (via its case when applicable)
	ClientID     uuid.UUID   // client profile owning the record
	Participants []uuid.UUID // user ids of message sender and recipient
}

// Decision is ALLOW or DENY with a reason. A denial is not an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// owns reports whether id is a message participant.
func (r Resource) owns(id uuid.UUID) bool {
	return id != uuid.Nil && slices.Contains(r.Participants, id)
}

/* ============================ Constructors ============================== */

func CaseResource(c *models.Case) Resource {
	return Resource{Kind: KindCase, LawyerID: c.LawyerID, ClientID: c.ClientID}
}

// NewCaseResource describes a case that does not exist yet, for Create checks.
func NewCaseResource(lawyerID, clientID uuid.UUID) Resource {
	return Resource{Kind: KindCase, LawyerID: lawyerID, ClientID: clientID}
}

func AppointmentResource(a *models.Appointment) Resource {
	return Resource{Kind: KindAppointment, LawyerID: a.LawyerID, ClientID: a.ClientID}
}

// NewAppointmentResource describes a booking that does not exist yet.
func NewAppointmentResource(lawyerID, clientID uuid.UUID) Resource {
	return Resource{Kind: KindAppointment, LawyerID: lawyerID, ClientID: clientID}
}

// DocumentResource authorizes a document through the case it belongs to.
func DocumentResource(c *models.Case) Resource {
	return Resource{Kind: KindDocument, LawyerID: c.LawyerID, ClientID: c.ClientID}
}

// MessageResource includes the parties of the linked case when there is one.
func MessageResource(m *models.Message, c *models.Case) Resource {
	r := Resource{Kind: KindMessage, Participants: []uuid.UUID{m.SenderID, m.RecipientID}}
	if c != nil {
		r.LawyerID, r.ClientID = c.LawyerID, c.ClientID
	}
	return r
}

func DirectoryResource() Resource { return Resource{Kind: KindDirectory} }
func UserResource() Resource { return Resource{Kind: KindUser} }
func ReportResource() Resource { return Resource{Kind: KindReport} }

/* ================================ Rules ================================= */

// Decide evaluates the rules in precedence order; the first match wins.
func Decide(a Actor, act Action, r Resource) Decision {
	switch a.Role {
	case models.RoleAdmin:
		return allow()

	case models.RoleLawyer:
		if a.ProfileID == uuid.Nil {
			return deny("lawyer profile missing")
		}
		switch r.Kind {
		case KindDirectory:
			// Lawyers pick clients and colleagues from the active pool
			if act == ActionRead {
				return allow()
			}
		case KindCase, KindAppointment, KindDocument:
			if r.LawyerID == a.ProfileID {
				return allow()
			}
			return deny("not the assigned lawyer")
		case KindMessage:
			if r.owns(a.UserID) || r.LawyerID == a.ProfileID {
				return allow()
			}
			return deny("not a participant")
		}

	case models.RoleClient:
		if a.ProfileID == uuid.Nil {
			return deny("client profile missing")
		}
		switch r.Kind {
		case KindCase, KindAppointment, KindDocument:
			if act != ActionRead {
				return deny("clients have read-only access")
			}
			if r.ClientID == a.ProfileID {
				return allow()
			}
			return deny("not the case client")
		case KindMessage:
			if r.owns(a.UserID) || r.ClientID == a.ProfileID {
				return allow()
			}
			return deny("not a participant")
		}
	}
	return deny("not authorized")
}

/* ================================ Engine ================================ */

type Engine struct{ log *zap.Logger }

func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// CanAccess returns the decision and records it.
func (e *Engine) CanAccess(a Actor, act Action, r Resource) Decision {
	d := Decide(a, act, r)
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	metrics.AccessDecisions.WithLabelValues(string(a.Role), string(r.Kind), string(act), outcome).Inc()

	if d.Allowed {
		e.log.Debug("access allowed",
			zap.String("actor", a.UserID.String()),
			zap.String("role", string(a.Role)),
			zap.String("kind", string(r.Kind)),
			zap.String("action", string(act)))
	} else {
		e.log.Warn("access denied",
			zap.String("actor", a.UserID.String()),
			zap.String("role", string(a.Role)),
			zap.String("kind", string(r.Kind)),
			zap.String("action", string(act)),
			zap.String("reason", d.Reason))
	}
	return d
}

// Require is CanAccess for callers that branch on errors: a denial becomes ErrForbidden.
func (e *Engine) Require(a Actor, act Action, r Resource) error {
	if d := e.CanAccess(a, act, r); !d.Allowed {
		return apperr.Forbidden(d.Reason)
	}
	return nil
}
