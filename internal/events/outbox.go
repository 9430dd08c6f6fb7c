package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventGrantIssued       = "grant.issued"
	EventCreditConsumed    = "credit.consumed"
	EventReferralCompleted = "referral.completed"
)

// Event is a transactional outbox row. DedupeKey makes redelivery of the
// same fact a no-op at the storage layer.
type Event struct {
	HolderID  snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

// StoredEvent is the persisted shape of an outbox row, read back by
// downstream publishers.
type StoredEvent struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	HolderID  snowflake.ID
	Type      string
	Payload   datatypes.JSON
	DedupeKey string `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

func (StoredEvent) TableName() string {
	return "events"
}

type Outbox struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(log *zap.Logger, genID *snowflake.Node) *Outbox {
	return &Outbox{
		log:   log.Named("events.outbox"),
		genID: genID,
	}
}

// PublishTx writes the event inside the caller's transaction so the event
// becomes visible iff the surrounding write commits.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("outbox requires a transaction")
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return errors.New("event type is required")
	}
	dedupeKey := strings.TrimSpace(event.DedupeKey)
	if dedupeKey == "" {
		return errors.New("event dedupe key is required")
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO events (id, holder_id, type, payload, dedupe_key, created_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		event.HolderID,
		eventType,
		string(raw),
		dedupeKey,
	).Error
}

// Pending returns stored events oldest first for downstream publishing.
func (o *Outbox) Pending(ctx context.Context, db *gorm.DB, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []StoredEvent
	err := db.WithContext(ctx).Order("id ASC").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
)
