// Package documents records versioned files attached to cases.
//
// For each (case, filename) the versions run 1, 2, 3, ... without gaps.
// The next number is taken as max+1 while the case row is locked; the
// unique index on (case, filename, version) catches any writer that slips
// past the lock, and the loser retries with a fresh max.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/metrics"
	"github.com/aldoetobex/bufete-backend/internal/storage"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

const maxVersionAttempts = 3

type Service struct {
	repo      store.Repository
	files     storage.FileStorage
	access    *access.Engine
	log       *zap.Logger
	signedTTL time.Duration
	now       func() time.Time
}

func NewService(repo store.Repository, files storage.FileStorage, eng *access.Engine, signedTTL time.Duration, log *zap.Logger) *Service {
	if signedTTL <= 0 {
		signedTTL = time.Minute
	}
	return &Service{repo: repo, files: files, access: eng, log: log, signedTTL: signedTTL, now: time.Now}
}

// UploadRequest is the metadata of one stored file.
type UploadRequest struct {
	CaseID       uuid.UUID
	Filename     string
	StoragePath  string
	DocumentType string
	SizeBytes    int64
}

func (r *UploadRequest) normalize() error {
	r.Filename = strings.TrimSpace(filepath.Base(r.Filename))
	r.DocumentType = strings.TrimSpace(r.DocumentType)
	switch {
	case r.Filename == "" || r.Filename == "." || r.Filename == "/":
		return apperr.InvalidArgument("filename is required")
	case r.StoragePath == "":
		return apperr.InvalidArgument("storage path is required")
	case r.SizeBytes < 0:
		return apperr.InvalidArgument("size must be zero or positive")
	case r.DocumentType == "":
		r.DocumentType = "Otro"
	case !slices.Contains(models.DocumentTypes, r.DocumentType):
		return apperr.InvalidArgument("unknown document type %q", r.DocumentType)
	}
	return nil
}

// Upload records a new version of filename on the case.
// Prior versions are never touched.
func (s *Service) Upload(ctx context.Context, actor access.Actor, req UploadRequest) (*models.Document, error) {
	cs, err := s.repo.CaseByID(ctx, req.CaseID, false)
	if err != nil {
		return nil, err
	}
	// Rechecked under the row lock in insertNext
	if err := s.access.Require(actor, access.ActionWrite, access.DocumentResource(cs)); err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var doc *models.Document
	for attempt := 1; attempt <= maxVersionAttempts; attempt++ {
		doc, err = s.insertNext(ctx, actor, req)
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
		metrics.DocumentVersionRetries.Inc()
		s.log.Debug("document version taken, retrying",
			zap.String("case_id", req.CaseID.String()),
			zap.String("filename", req.Filename),
			zap.Int("attempt", attempt))
	}
	if errors.Is(err, store.ErrDuplicate) {
		err = fmt.Errorf("%w: could not allocate a version for %s", apperr.ErrConflict, req.Filename)
	}
	metrics.DocumentVersions.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.log.Info("document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("case_id", doc.CaseID.String()),
		zap.String("filename", doc.Filename),
		zap.Int("version", doc.Version),
		zap.String("by", actor.UserID.String()))
	return doc, nil
}

func (s *Service) insertNext(ctx context.Context, actor access.Actor, req UploadRequest) (*models.Document, error) {
	var doc *models.Document
	err := s.repo.WithinTx(ctx, func(tx store.Repository) error {
		cs, err := tx.CaseByID(ctx, req.CaseID, true)
		if err != nil {
			return err
		}
		if err := s.access.Require(actor, access.ActionWrite, access.DocumentResource(cs)); err != nil {
			return err
		}
		top, err := tx.MaxDocumentVersion(ctx, cs.ID, req.Filename)
		if err != nil {
			return err
		}
		d := &models.Document{
			ID:           uuid.New(),
			CaseID:       cs.ID,
			Filename:     req.Filename,
			Version:      top + 1,
			StoragePath:  req.StoragePath,
			DocumentType: req.DocumentType,
			SizeBytes:    req.SizeBytes,
			UploadedBy:   actor.UserID,
			UploadedAt:   s.now(),
		}
		if err := tx.CreateDocument(ctx, d); err != nil {
			return err
		}
		doc = d
		return nil
	})
	return doc, err
}

// UploadFile writes the bytes through file storage, then records the version.
// Access is checked before any byte is stored; the object is removed again
// when the metadata cannot be written.
func (s *Service) UploadFile(ctx context.Context, actor access.Actor, caseID uuid.UUID, filename, documentType, contentType string, size int64, r io.Reader) (*models.Document, error) {
	cs, err := s.repo.CaseByID(ctx, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(actor, access.ActionWrite, access.DocumentResource(cs)); err != nil {
		return nil, err
	}

	key := storage.ObjectKey(caseID, filename)
	path, err := s.files.Store(ctx, key, r, storage.ContentType(filename, contentType), size)
	if err != nil {
		s.log.Error("file storage failed", zap.String("key", key), zap.Error(err))
		if errors.Is(err, apperr.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: file storage failed", apperr.ErrUnavailable)
	}

	doc, err := s.Upload(ctx, actor, UploadRequest{
		CaseID: caseID, Filename: filename, StoragePath: path,
		DocumentType: documentType, SizeBytes: size,
	})
	if err != nil {
		if derr := s.files.Delete(context.WithoutCancel(ctx), path); derr != nil {
			s.log.Warn("orphan object left in storage", zap.String("path", path), zap.Error(derr))
		}
		return nil, err
	}
	return doc, nil
}

// List returns every version of every file on the case, newest upload first.
func (s *Service) List(ctx context.Context, actor access.Actor, caseID uuid.UUID) ([]models.Document, error) {
	cs, err := s.repo.CaseByID(ctx, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(actor, access.ActionRead, access.DocumentResource(cs)); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, caseID)
}

// SignedURL returns a short-lived download link for a document the actor may read.
func (s *Service) SignedURL(ctx context.Context, actor access.Actor, docID uuid.UUID) (string, time.Duration, error) {
	doc, err := s.repo.DocumentByID(ctx, docID)
	if err != nil {
		return "", 0, err
	}
	cs, err := s.repo.CaseByID(ctx, doc.CaseID, false)
	if err != nil {
		return "", 0, err
	}
	if err := s.access.Require(actor, access.ActionRead, access.DocumentResource(cs)); err != nil {
		return "", 0, err
	}
	url, err := s.files.SignedURL(ctx, doc.StoragePath, s.signedTTL)
	if err != nil {
		if errors.Is(err, apperr.ErrUnavailable) {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return url, s.signedTTL, nil
}
