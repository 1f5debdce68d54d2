package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"catalog-service/internal/models"
)

// Event subjects
const (
	SubjectImportCommitted  = "catalog.import.committed"
	SubjectImportRolledBack = "catalog.import.rolled_back"
	SubjectImportDiscarded  = "catalog.import.discarded"
)

// ImportEvent is the payload published on every import lifecycle transition
type ImportEvent struct {
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	TenantID   string    `json:"tenantId"`
	CatalogID  string    `json:"catalogId"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	Categories int       `json:"categories"`
	Items      int       `json:"items"`
	Sizes      int       `json:"sizes"`
	Groups     int       `json:"groups"`
	Modifiers  int       `json:"modifiers"`
	Overrides  int       `json:"overrides"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher publishes catalog import lifecycle events to NATS
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS and returns a catalog events publisher
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("catalog-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:   conn,
		logger: logger.WithField("component", "catalog-events"),
	}, nil
}

// Close drains and closes the NATS connection
func (p *Publisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// PublishImportCommitted publishes a catalog.import.committed event
func (p *Publisher) PublishImportCommitted(ctx context.Context, session *models.ImportSession) error {
	return p.publish(ctx, SubjectImportCommitted, session)
}

// PublishImportRolledBack publishes a catalog.import.rolled_back event
func (p *Publisher) PublishImportRolledBack(ctx context.Context, session *models.ImportSession) error {
	return p.publish(ctx, SubjectImportRolledBack, session)
}

// PublishImportDiscarded publishes a catalog.import.discarded event
func (p *Publisher) PublishImportDiscarded(ctx context.Context, session *models.ImportSession) error {
	return p.publish(ctx, SubjectImportDiscarded, session)
}

func (p *Publisher) buildEvent(eventType string, session *models.ImportSession) *ImportEvent {
	return &ImportEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		TenantID:   session.TenantID,
		CatalogID:  session.CatalogID,
		SessionID:  session.ID.String(),
		UserID:     session.UserID,
		Status:     string(session.Status),
		Categories: len(session.ParsedData.Categories),
		Items:      len(session.ParsedData.Items),
		Sizes:      len(session.ParsedData.ItemSizes),
		Groups:     len(session.ParsedData.ModifierGroups),
		Modifiers:  len(session.ParsedData.Modifiers),
		Overrides:  len(session.ParsedData.ItemModifierOverrides),
		Timestamp:  time.Now().UTC(),
	}
}

// publish sends the event asynchronously so a slow broker never blocks the
// import flow
func (p *Publisher) publish(ctx context.Context, subject string, session *models.ImportSession) error {
	event := p.buildEvent(subject, session)

	go func() {
		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to encode import event")
			return
		}

		if err := p.conn.Publish(subject, data); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"sessionID": event.SessionID,
				"tenantID":  event.TenantID,
			}).WithError(err).Error("Failed to publish import event")
			return
		}

		p.logger.WithFields(logrus.Fields{
			"eventType": event.EventType,
			"sessionID": event.SessionID,
			"tenantID":  event.TenantID,
		}).Info("Import event published")
	}()

	return nil
}
