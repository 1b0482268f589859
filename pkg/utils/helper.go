package utils

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/bufete-backend/pkg/models"
	"github.com/aldoetobex/bufete-backend/pkg/sanitize"
)

// Case history actions.
const (
	ActionCreated      = "created"
	ActionTransitioned = "transitioned"
	ActionForcedClose  = "forced_close"
)

// HistoryWriter is satisfied by any repository, including one bound to a transaction.
type HistoryWriter interface {
	AppendCaseHistory(ctx context.Context, h *models.CaseHistory) error
}

// LogCaseHistory inserts an audit record for a case change.
// Pass the transaction-bound writer so the entry commits with the change itself.
// Free-text reasons are stored with PII redacted.
func LogCaseHistory(
	ctx context.Context,
	w HistoryWriter,
	caseID, actorID uuid.UUID,
	action string,
	oldS, newS models.CaseState,
	reason string,
	at time.Time,
) error {
	return w.AppendCaseHistory(ctx, &models.CaseHistory{
		ID:        uuid.New(),
		CaseID:    caseID,
		ActorID:   actorID,
		Action:    action,
		OldState:  oldS,
		NewState:  newS,
		Reason:    sanitize.RedactPII(reason),
		CreatedAt: at,
	})
}
