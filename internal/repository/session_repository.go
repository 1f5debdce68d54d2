package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-service/internal/models"
)

// SessionRepository is the persistence interface for import sessions
type SessionRepository interface {
	Create(session *models.ImportSession) error
	GetByID(tenantID string, id uuid.UUID) (*models.ImportSession, error)
	Update(session *models.ImportSession) error
	List(tenantID, catalogID string, status models.ImportSessionStatus, page, limit int) ([]models.ImportSession, int64, error)
	Delete(tenantID string, id uuid.UUID) error
	DeleteExpired(now time.Time) (int64, error)
}

type GormSessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(session *models.ImportSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()
	return r.db.Create(session).Error
}

func (r *GormSessionRepository) GetByID(tenantID string, id uuid.UUID) (*models.ImportSession, error) {
	var session models.ImportSession
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GormSessionRepository) Update(session *models.ImportSession) error {
	session.UpdatedAt = time.Now()
	return r.db.Save(session).Error
}

func (r *GormSessionRepository) List(tenantID, catalogID string, status models.ImportSessionStatus, page, limit int) ([]models.ImportSession, int64, error) {
	var sessions []models.ImportSession
	var total int64

	query := r.db.Model(&models.ImportSession{}).Where("tenant_id = ?", tenantID)
	if catalogID != "" {
		query = query.Where("catalog_id = ?", catalogID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (r *GormSessionRepository) Delete(tenantID string, id uuid.UUID) error {
	return r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.ImportSession{}).Error
}

// DeleteExpired removes sessions whose staging window has lapsed. Confirmed
// sessions are kept so their rollback logs stay available.
func (r *GormSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ? AND status IN ?", now,
		[]models.ImportSessionStatus{models.ImportStatusDraft, models.ImportStatusValidated, models.ImportStatusDiscarded}).
		Delete(&models.ImportSession{})
	return result.RowsAffected, result.Error
}
