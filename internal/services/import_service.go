package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"catalog-service/internal/events"
	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"catalog-service/internal/repository"
)

var (
	ErrSessionNotFound    = errors.New("import session not found")
	ErrInvalidTransition  = errors.New("operation not allowed in current session status")
	ErrValidationFailed   = errors.New("session has validation errors")
	ErrSessionExpired     = errors.New("import session has expired")
	ErrNothingToImport    = errors.New("no importable rows found")
	ErrSessionNotEditable = errors.New("confirmed sessions cannot be deleted")
)

// DefaultSessionTTL is how long a staged session stays editable
const DefaultSessionTTL = 24 * time.Hour

// ImportService drives the import session lifecycle: parse and stage,
// validate, confirm into the live catalog, and roll a confirmed import back.
type ImportService struct {
	catalog    repository.CatalogRepository
	sessions   repository.SessionRepository
	publisher  *events.Publisher
	logger     *logrus.Logger
	sessionTTL time.Duration
}

// NewImportService creates a new ImportService. publisher may be nil when
// event publishing is disabled.
func NewImportService(catalog repository.CatalogRepository, sessions repository.SessionRepository, publisher *events.Publisher, logger *logrus.Logger) *ImportService {
	return &ImportService{
		catalog:    catalog,
		sessions:   sessions,
		publisher:  publisher,
		logger:     logger,
		sessionTTL: DefaultSessionTTL,
	}
}

// SetSessionTTL overrides how long staged sessions stay editable
func (s *ImportService) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
}

// CreateSession parses an uploaded file (CSV, XLSX or a ZIP of them) into a
// new staged session and validates it. A session with validation errors is
// created in DRAFT; a clean one goes straight to VALIDATED.
func (s *ImportService) CreateSession(ctx context.Context, tenantID, catalogID, userID, filename string, data []byte, hint models.EntityKind) (*models.ImportSession, error) {
	parsed, files, err := importer.ParseUpload(filename, data, hint)
	if err != nil {
		return nil, err
	}
	if parsed.IsEmpty() {
		return nil, ErrNothingToImport
	}

	session := &models.ImportSession{
		ID:            uuid.New(),
		TenantID:      tenantID,
		CatalogID:     catalogID,
		UserID:        userID,
		ParsedData:    *parsed,
		OriginalFiles: files,
		ExpiresAt:     time.Now().Add(s.sessionTTL),
	}

	if err := s.revalidate(session); err != nil {
		return nil, err
	}

	if err := s.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create import session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"sessionID": session.ID,
		"tenantID":  tenantID,
		"catalogID": catalogID,
		"status":    session.Status,
		"files":     len(files),
	}).Info("Import session created")

	return session, nil
}

// AppendFile parses another upload into an existing editable session and
// re-validates the combined data.
func (s *ImportService) AppendFile(ctx context.Context, tenantID string, sessionID uuid.UUID, filename string, data []byte, hint models.EntityKind) (*models.ImportSession, error) {
	session, err := s.getEditable(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	parsed, files, err := importer.ParseUpload(filename, data, hint)
	if err != nil {
		return nil, err
	}

	session.ParsedData.Merge(parsed)
	session.OriginalFiles = append(session.OriginalFiles, files...)

	if err := s.revalidate(session); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(session); err != nil {
		return nil, fmt.Errorf("failed to update import session: %w", err)
	}
	return session, nil
}

// UpdateData replaces a session's staged data with an edited copy (the
// review UI lets users fix rows in place) and re-validates it.
func (s *ImportService) UpdateData(ctx context.Context, tenantID string, sessionID uuid.UUID, data models.ParsedImportData) (*models.ImportSession, error) {
	session, err := s.getEditable(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if data.IsEmpty() {
		return nil, ErrNothingToImport
	}

	session.ParsedData = data
	if err := s.revalidate(session); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(session); err != nil {
		return nil, fmt.Errorf("failed to update import session: %w", err)
	}
	return session, nil
}

// Confirm re-validates the session against the current catalog, then applies
// it inside one transaction and records the rollback log. A session with
// validation errors is never committed.
func (s *ImportService) Confirm(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.getEditable(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	// The catalog may have changed since the last validation pass.
	if err := s.revalidate(session); err != nil {
		return nil, err
	}
	if len(session.ValidationErrors) > 0 {
		if updateErr := s.sessions.Update(session); updateErr != nil {
			s.logger.WithError(updateErr).Warn("Failed to persist re-validation result")
		}
		return session, ErrValidationFailed
	}

	// The session row carries the only copy of the rollback log, so it must
	// land in the same transaction as the catalog mutations.
	err = s.catalog.WithTransaction(func(txCatalog repository.CatalogRepository, txSessions repository.SessionRepository) error {
		log, err := importer.SaveAll(txCatalog, tenantID, session.CatalogID, &session.ParsedData)
		if err != nil {
			return err
		}
		session.Status = models.ImportStatusConfirmed
		session.RollbackLog = log
		return txSessions.Update(session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit import session %s: %w", sessionID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"sessionID":  session.ID,
		"tenantID":   tenantID,
		"catalogID":  session.CatalogID,
		"operations": len(session.RollbackLog),
	}).Info("Import session confirmed")

	if s.publisher != nil {
		_ = s.publisher.PublishImportCommitted(ctx, session)
	}
	return session, nil
}

// Discard abandons a staged session. Only editable sessions can be
// discarded; a confirmed import must be rolled back instead.
func (s *ImportService) Discard(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.getSession(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.ImportStatusDraft && session.Status != models.ImportStatusValidated {
		return nil, fmt.Errorf("cannot discard session in status %s: %w", session.Status, ErrInvalidTransition)
	}

	session.Status = models.ImportStatusDiscarded
	if err := s.sessions.Update(session); err != nil {
		return nil, fmt.Errorf("failed to discard session: %w", err)
	}

	if s.publisher != nil {
		_ = s.publisher.PublishImportDiscarded(ctx, session)
	}
	return session, nil
}

// Rollback undoes a confirmed import by replaying its operation log in
// reverse, inside one transaction.
func (s *ImportService) Rollback(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.getSession(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.ImportStatusConfirmed {
		return nil, fmt.Errorf("cannot roll back session in status %s: %w", session.Status, ErrInvalidTransition)
	}

	err = s.catalog.WithTransaction(func(txCatalog repository.CatalogRepository, txSessions repository.SessionRepository) error {
		if err := importer.Rollback(txCatalog, tenantID, session.RollbackLog); err != nil {
			return err
		}
		session.Status = models.ImportStatusRolledBack
		return txSessions.Update(session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to roll back import session %s: %w", sessionID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"sessionID": session.ID,
		"tenantID":  tenantID,
		"catalogID": session.CatalogID,
	}).Info("Import session rolled back")

	if s.publisher != nil {
		_ = s.publisher.PublishImportRolledBack(ctx, session)
	}
	return session, nil
}

// GetSession returns one import session
func (s *ImportService) GetSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	return s.getSession(tenantID, sessionID)
}

// ListSessions returns sessions for a tenant, optionally filtered by catalog
// and status
func (s *ImportService) ListSessions(ctx context.Context, tenantID, catalogID string, status models.ImportSessionStatus, page, limit int) ([]models.ImportSession, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sessions.List(tenantID, catalogID, status, page, limit)
}

// DeleteSession removes a session record. Confirmed sessions are protected
// because deleting one would destroy its rollback log.
func (s *ImportService) DeleteSession(ctx context.Context, tenantID string, sessionID uuid.UUID) error {
	session, err := s.getSession(tenantID, sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.ImportStatusConfirmed {
		return ErrSessionNotEditable
	}
	return s.sessions.Delete(tenantID, sessionID)
}

// ValidationReportCSV renders a session's validation issues as a CSV
// download for offline review.
func (s *ImportService) ValidationReportCSV(ctx context.Context, tenantID string, sessionID uuid.UUID) ([]byte, error) {
	session, err := s.getSession(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"severity", "file", "row", "entity_type", "field", "message", "value"})

	writeIssues := func(severity string, issues models.ValidationIssueList) {
		for _, issue := range issues {
			_ = w.Write([]string{
				severity,
				issue.File,
				strconv.Itoa(issue.Row),
				string(issue.EntityType),
				issue.Field,
				issue.Message,
				issue.Value,
			})
		}
	}
	writeIssues("error", session.ValidationErrors)
	writeIssues("warning", session.ValidationWarnings)

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write validation report: %w", err)
	}
	return buf.Bytes(), nil
}

// DeleteExpired reaps staged sessions past their expiry.
// Meant to be called periodically by a background job.
func (s *ImportService) DeleteExpired(ctx context.Context) (int64, error) {
	deleted, err := s.sessions.DeleteExpired(time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if deleted > 0 {
		s.logger.WithField("count", deleted).Info("Expired import sessions deleted")
	}
	return deleted, nil
}

// revalidate refreshes the session's issues against the current catalog and
// sets DRAFT or VALIDATED accordingly.
func (s *ImportService) revalidate(session *models.ImportSession) error {
	catalogCtx, err := importer.LoadCatalogContext(s.catalog, session.TenantID, session.CatalogID)
	if err != nil {
		return fmt.Errorf("failed to load catalog context: %w", err)
	}

	validationErrors, warnings := importer.Validate(&session.ParsedData, catalogCtx)
	session.ValidationErrors = validationErrors
	session.ValidationWarnings = warnings
	if len(validationErrors) > 0 {
		session.Status = models.ImportStatusDraft
	} else {
		session.Status = models.ImportStatusValidated
	}
	return nil
}

func (s *ImportService) getSession(tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.sessions.GetByID(tenantID, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// getEditable loads a session and checks it still accepts staging changes
func (s *ImportService) getEditable(tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.getSession(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.ImportStatusDraft && session.Status != models.ImportStatusValidated {
		return nil, fmt.Errorf("session is %s: %w", session.Status, ErrInvalidTransition)
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return session, nil
}
