package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/pubsub"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// AuditPublisher hands financial mutations to the external audit log.
// Publishing never fails the mutation it describes; errors are logged.
type AuditPublisher interface {
	Publish(ctx context.Context, entries ...*audit.Entry)
}

type auditPublisher struct {
	publisher pubsub.Publisher
	logger    *logger.Logger
}

func NewAuditPublisher(publisher pubsub.Publisher, logger *logger.Logger) AuditPublisher {
	return &auditPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *auditPublisher) Publish(ctx context.Context, entries ...*audit.Entry) {
	log := p.logger.WithContext(ctx)
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			log.Errorw("failed to marshal audit entry",
				"entity_id", entry.EntityID,
				"action", entry.Action,
				"error", err)
			continue
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("company_id", entry.CompanyID)
		msg.Metadata.Set("action", string(entry.Action))
		msg.Metadata.Set("entity_type", string(entry.EntityType))

		if err := p.publisher.Publish(ctx, pubsub.TopicAudit, msg); err != nil {
			log.Errorw("failed to publish audit entry",
				"entity_id", entry.EntityID,
				"action", entry.Action,
				"error", err)
			continue
		}
		log.Debugw("published audit entry",
			"entity_id", entry.EntityID,
			"action", entry.Action)
	}
}

// AuditLogSink writes every published audit entry to the structured log.
// Deployments that ship entries elsewhere subscribe to the topic themselves.
type AuditLogSink struct {
	subscriber pubsub.Subscriber
	logger     *logger.Logger
}

func NewAuditLogSink(subscriber pubsub.Subscriber, logger *logger.Logger) *AuditLogSink {
	return &AuditLogSink{subscriber: subscriber, logger: logger}
}

// Run consumes the audit topic until ctx is done or the subscriber closes.
func (s *AuditLogSink) Run(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, pubsub.TopicAudit)
	if err != nil {
		return err
	}

	for msg := range messages {
		var entry audit.Entry
		if err := json.Unmarshal(msg.Payload, &entry); err != nil {
			s.logger.Errorw("dropping malformed audit entry",
				"message_id", msg.UUID,
				"error", err)
			msg.Ack()
			continue
		}

		s.logger.Infow("audit",
			"audit_id", entry.ID,
			"company_id", entry.CompanyID,
			"actor", entry.Actor,
			"request_id", entry.RequestID,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"action", entry.Action,
			"old_amount", entry.OldAmount,
			"new_amount", entry.NewAmount,
			"reason", entry.Reason,
			"occurred_at", entry.OccurredAt)
		msg.Ack()
	}
	return nil
}

// auditLog collects the entries of one mutation so they are only published
// once the transaction has committed.
type auditLog struct {
	cc      types.CompanyContext
	now     time.Time
	entries []*audit.Entry
}

func newAuditLog(cc types.CompanyContext, now time.Time) *auditLog {
	return &auditLog{cc: cc, now: now}
}

// reset drops entries of a failed attempt before a retry.
func (l *auditLog) reset() {
	l.entries = l.entries[:0]
}

func (l *auditLog) record(entityType audit.EntityType, entityID string, action audit.Action, oldAmount, newAmount *decimal.Decimal, reason string, metadata map[string]any) {
	l.entries = append(l.entries, &audit.Entry{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT),
		CompanyID:  l.cc.CompanyID,
		Actor:      l.cc.Actor(),
		RequestID:  l.cc.RequestID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		OldAmount:  oldAmount,
		NewAmount:  newAmount,
		Reason:     reason,
		Metadata:   metadata,
		OccurredAt: l.now,
	})
}

func amountPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
