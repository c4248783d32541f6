package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
	"github.com/devnolife/sakti-dashboard-sub017/internal/store"
)

// AuditService appends the append-only trail of workflow transitions and
// verification attempts. Recording is best-effort: a failed append is logged
// and reported as a warning, never propagated to the triggering operation.
type AuditService struct {
	store  store.Store
	logger *zap.Logger
}

func NewAuditService(st store.Store, logger *zap.Logger) *AuditService {
	return &AuditService{
		store:  st,
		logger: logger.With(zap.String("service", "audit")),
	}
}

// Entry builds an audit row. detail is marshalled to JSON; a detail that
// cannot marshal is recorded as an empty object rather than dropped.
func (as *AuditService) Entry(actor Actor, action, resourceID string, detail map[string]interface{}, clientIP string) *models.AuditLogEntry {
	raw := []byte("{}")
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			raw = b
		} else {
			as.logger.Warn("audit detail not serializable",
				zap.String("action", action), zap.Error(err))
		}
	}
	return &models.AuditLogEntry{
		ID:         uuid.New().String(),
		Actor:      actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		ResourceID: resourceID,
		Detail:     string(raw),
		ClientIP:   clientIP,
		OccurredAt: time.Now().UTC(),
	}
}

// Record appends an entry outside of any transition transaction.
func (as *AuditService) Record(ctx context.Context, entry *models.AuditLogEntry) {
	if err := as.store.AppendAudit(ctx, entry); err != nil {
		as.logger.Warn("audit append failed",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err))
	}
}

// Export returns a page of audit entries matching the filter, plus the total
// match count.
func (as *AuditService) Export(ctx context.Context, filter store.AuditFilter) ([]models.AuditLogEntry, int64, error) {
	return as.store.ListAudit(ctx, filter)
}
