package statement

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// ErrNotGenerated is returned when no statement exists for the batch yet
var ErrNotGenerated = shared.NewDomainError("STATEMENT_NOT_GENERATED", "Settlement statement has not been generated")

// BatchReader loads a batch and its stamped commissions
type BatchReader interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error)
	ListCommissions(ctx context.Context, tenantID, id uuid.UUID) ([]commission.Commission, error)
}

// Exporter writes a workbook for every closed batch
type Exporter struct {
	batches BatchReader
	store   storage.Store
	prefix  string
	logger  *zap.Logger
}

// NewExporter creates the statement exporter
func NewExporter(batches BatchReader, store storage.Store, prefix string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		batches: batches,
		store:   store,
		prefix:  prefix,
		logger:  logger,
	}
}

// Key returns the object key of a batch statement
func (e *Exporter) Key(tenantID uuid.UUID, batchNumber string) string {
	return path.Join(e.prefix, tenantID.String(), batchNumber+".xlsx")
}

// HandlerName identifies the handler for idempotency keys
func (e *Exporter) HandlerName() string {
	return "settlement_statement"
}

// EventTypes returns the event types this handler is interested in
func (e *Exporter) EventTypes() []string {
	return []string{settlement.EventTypeSettlementBatchClosed}
}

// Handle exports the statement of the closed batch
func (e *Exporter) Handle(ctx context.Context, event shared.DomainEvent) error {
	be, ok := event.(*settlement.BatchEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}
	_, err := e.Export(ctx, be.TenantID(), be.BatchID)
	return err
}

// Export renders and uploads the statement, returning its key. A statement
// already present under the key is left as is.
func (e *Exporter) Export(ctx context.Context, tenantID, batchID uuid.UUID) (string, error) {
	b, err := e.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return "", err
	}
	if b.ClosedAt == nil {
		return "", shared.NewStateConflictError("SettlementBatch", "export statement for", b.Status.String())
	}

	key := e.Key(tenantID, b.BatchNumber)
	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}

	commissions, err := e.batches.ListCommissions(ctx, tenantID, batchID)
	if err != nil {
		return "", err
	}
	data, err := BuildWorkbook(b, commissions)
	if err != nil {
		return "", err
	}
	if err := e.store.Put(ctx, key, data, ContentType); err != nil {
		return "", err
	}

	e.logger.Info("settlement statement exported",
		zap.String("batch_number", b.BatchNumber),
		zap.String("key", key),
		zap.Int("commissions", len(commissions)),
	)
	return key, nil
}

// DownloadURL returns a time-limited link to the batch statement
func (e *Exporter) DownloadURL(ctx context.Context, tenantID, batchID uuid.UUID, expiresIn time.Duration) (string, time.Time, error) {
	b, err := e.batches.Get(ctx, tenantID, batchID)
	if err != nil {
		return "", time.Time{}, err
	}
	key := e.Key(tenantID, b.BatchNumber)
	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return "", time.Time{}, err
	}
	if !exists {
		return "", time.Time{}, ErrNotGenerated
	}
	return e.store.PresignGet(ctx, key, expiresIn)
}

// IsNotGenerated reports whether err means the statement is missing
func IsNotGenerated(err error) bool {
	return errors.Is(err, ErrNotGenerated)
}

var _ shared.EventHandler = (*Exporter)(nil)
