package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLogger keeps an append-only trail of ticket lifecycle events. It is
// fed asynchronously by cmd/audit-worker from the broker, so a mongo outage
// never blocks a purchase.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditEntry struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	MessageID string    `bson:"message_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// Record stores one lifecycle event. The payload is the outbox JSON body;
// messageID is the broker dedupe key, kept so replays can be spotted.
func (a *AuditLogger) Record(ctx context.Context, action, messageID string, payload []byte) error {
	var data bson.M
	if err := json.Unmarshal(payload, &data); err != nil {
		data = bson.M{"raw": string(payload)}
	}
	entry := AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		MessageID: messageID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithError(err).Error("failed to insert audit entry")
		return err
	}
	return nil
}

// ListByAction returns recent entries for one action, newest first.
func (a *AuditLogger) ListByAction(ctx context.Context, action string, limit int64) ([]AuditEntry, error) {
	opts := options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"action": action}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []AuditEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
