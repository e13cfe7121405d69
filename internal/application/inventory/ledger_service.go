package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const idempotencyKeyPrefix = "movement:"

// LedgerOptions tunes the StockLedger
type LedgerOptions struct {
	BulkMaxItems    int
	BulkConcurrency int
	IdempotencyTTL  time.Duration
	// StuckAfter is how long a movement may stay IN_PROGRESS before recovery fails it
	StuckAfter time.Duration
}

// DefaultLedgerOptions returns the defaults used when a field is zero
func DefaultLedgerOptions() LedgerOptions {
	return LedgerOptions{
		BulkMaxItems:    500,
		BulkConcurrency: 8,
		IdempotencyTTL:  24 * time.Hour,
		StuckAfter:      15 * time.Minute,
	}
}

func (o LedgerOptions) withDefaults() LedgerOptions {
	d := DefaultLedgerOptions()
	if o.BulkMaxItems <= 0 {
		o.BulkMaxItems = d.BulkMaxItems
	}
	if o.BulkConcurrency <= 0 {
		o.BulkConcurrency = d.BulkConcurrency
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = d.IdempotencyTTL
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = d.StuckAfter
	}
	return o
}

// StockLedger records movements and applies them to StockLevel rows.
//
// A movement is applied in one transaction that locks every touched row in
// StockKey order, so a TRANSFER debits and credits together or not at all.
type StockLedger struct {
	scope          TransactionScope
	movements      inventory.MovementRepository
	levels         inventory.StockLevelRepository
	clock          shared.Clock
	opts           LedgerOptions
	idempotency    shared.IdempotencyStore
	jobs           JobScheduler
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
}

// NewStockLedger creates a new StockLedger
func NewStockLedger(
	scope TransactionScope,
	movements inventory.MovementRepository,
	levels inventory.StockLevelRepository,
	clock shared.Clock,
	opts LedgerOptions,
	logger *zap.Logger,
) *StockLedger {
	return &StockLedger{
		scope:     scope,
		movements: movements,
		levels:    levels,
		clock:     clock,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (l *StockLedger) SetEventPublisher(publisher shared.EventPublisher) {
	l.eventPublisher = publisher
}

// SetIdempotencyStore enables Idempotency-Key handling on Submit
func (l *StockLedger) SetIdempotencyStore(store shared.IdempotencyStore) {
	l.idempotency = store
}

// SetJobScheduler enables queue-based processing of scheduled movements
func (l *StockLedger) SetJobScheduler(jobs JobScheduler) {
	l.jobs = jobs
}

// SetMetrics sets the ledger metrics recorder
func (l *StockLedger) SetMetrics(metrics *telemetry.LedgerMetrics) {
	l.metrics = metrics
}

// Submit records a new movement. URGENT movements are created APPROVED.
// Availability is checked here as a fast fail and again under lock when the
// movement is processed.
func (l *StockLedger) Submit(ctx context.Context, req SubmitMovementRequest) (*MovementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "submit",
		telemetry.AttrItemID, req.ItemID.String(),
		telemetry.AttrMovementType, req.Type,
		telemetry.AttrQuantity, req.Quantity,
	)
	defer span.End()

	resp, err := l.submit(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.AttrMovementID, resp.ID.String())
	return resp, nil
}

func (l *StockLedger) submit(ctx context.Context, req SubmitMovementRequest) (*MovementResponse, error) {
	now := l.clock.Now()
	m, err := inventory.NewMovement(req.toSpec(), now)
	if err != nil {
		return nil, err
	}

	key := ""
	if req.IdempotencyKey != "" && l.idempotency != nil {
		key = idempotencyKeyPrefix + req.IdempotencyKey
		stored, claimed, err := l.idempotency.Remember(ctx, key, m.ID.String(), l.opts.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if !claimed {
			return l.replay(ctx, req.IdempotencyKey, stored)
		}
	}

	if err := l.checkAvailability(ctx, m, now); err != nil {
		l.forget(ctx, key)
		return nil, err
	}
	if err := l.movements.Create(ctx, m); err != nil {
		l.forget(ctx, key)
		return nil, fmt.Errorf("create movement: %w", err)
	}
	m.ClearDomainEvents()

	l.metrics.MovementSubmitted(ctx, string(m.Type), string(m.Priority))
	logger.Enrich(ctx, l.logger).Info("Movement submitted",
		zap.String("movement_id", m.ID.String()),
		zap.String("item_id", m.ItemID.String()),
		zap.String("type", string(m.Type)),
		zap.String("status", string(m.Status)),
		zap.Int64("quantity", m.Quantity),
	)
	l.scheduleIfDeferred(ctx, m, now)

	resp := ToMovementResponse(m)
	return &resp, nil
}

func (l *StockLedger) replay(ctx context.Context, idempotencyKey, stored string) (*MovementResponse, error) {
	id, err := uuid.Parse(stored)
	if err != nil {
		return nil, fmt.Errorf("idempotency key %q maps to malformed id %q: %w", idempotencyKey, stored, err)
	}
	existing, err := l.movements.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeConcurrencyConflict,
				"a request with this idempotency key is still being processed").
				WithDetail("idempotency_key", idempotencyKey)
		}
		return nil, err
	}
	resp := ToMovementResponse(existing)
	resp.Replayed = true
	return &resp, nil
}

func (l *StockLedger) forget(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := l.idempotency.Forget(context.WithoutCancel(ctx), key); err != nil {
		logger.Enrich(ctx, l.logger).Warn("Failed to release idempotency key",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// checkAvailability dry-runs the debit side of a movement against the
// current unlocked row
func (l *StockLedger) checkAvailability(ctx context.Context, m *inventory.Movement, now time.Time) error {
	if m.Type == inventory.MovementTypeIn {
		return nil
	}
	for _, e := range m.Effects() {
		if e.Delta >= 0 {
			continue
		}
		level, err := l.levels.FindByKey(ctx, m.ItemID, e.LocationID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			if level, err = inventory.NewStockLevel(m.ItemID, e.LocationID, now); err != nil {
				return err
			}
		}
		trial := *level
		trial.ClearDomainEvents()
		if m.Type == inventory.MovementTypeAdjustment {
			err = trial.Adjust(e.Delta, e.Cause, now)
		} else {
			err = trial.Issue(-e.Delta, e.Cause, now)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *StockLedger) scheduleIfDeferred(ctx context.Context, m *inventory.Movement, now time.Time) {
	if l.jobs == nil || m.Status != inventory.MovementStatusApproved || m.IsDue(now) {
		return
	}
	if err := l.jobs.ScheduleMovement(ctx, m.ID, *m.ScheduledAt); err != nil {
		// the due-movement sweep still picks it up
		logger.Enrich(ctx, l.logger).Warn("Failed to schedule movement",
			zap.String("movement_id", m.ID.String()),
			zap.Time("scheduled_at", *m.ScheduledAt),
			zap.Error(err),
		)
	}
}

// Approve moves a PENDING movement to APPROVED
func (l *StockLedger) Approve(ctx context.Context, id uuid.UUID, req ApproveMovementRequest) (*MovementResponse, error) {
	m, err := l.transition(ctx, "approve", id, func(m *inventory.Movement, now time.Time) error {
		return m.Approve(req.ApprovedBy, now)
	})
	if err != nil {
		return nil, err
	}
	l.scheduleIfDeferred(ctx, m, l.clock.Now())
	resp := ToMovementResponse(m)
	return &resp, nil
}

// Reject moves a PENDING movement to REJECTED
func (l *StockLedger) Reject(ctx context.Context, id uuid.UUID, req RejectMovementRequest) (*MovementResponse, error) {
	m, err := l.transition(ctx, "reject", id, func(m *inventory.Movement, now time.Time) error {
		return m.Reject(req.RejectedBy, req.Reason, now)
	})
	if err != nil {
		return nil, err
	}
	resp := ToMovementResponse(m)
	return &resp, nil
}

// Cancel withdraws a PENDING or APPROVED movement
func (l *StockLedger) Cancel(ctx context.Context, id uuid.UUID, req CancelMovementRequest) (*MovementResponse, error) {
	m, err := l.transition(ctx, "cancel", id, func(m *inventory.Movement, now time.Time) error {
		return m.Cancel(req.CancelledBy, req.Reason, now)
	})
	if err != nil {
		return nil, err
	}
	resp := ToMovementResponse(m)
	return &resp, nil
}

func (l *StockLedger) transition(ctx context.Context, op string, id uuid.UUID, fn func(*inventory.Movement, time.Time) error) (*inventory.Movement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", op, telemetry.AttrMovementID, id.String())
	defer span.End()

	var updated *inventory.Movement
	err := l.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		m, err := repos.Movements().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(m, l.clock.Now()); err != nil {
			return err
		}
		if err := repos.Movements().Save(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Enrich(ctx, l.logger).Info("Movement "+op+" recorded",
		zap.String("movement_id", id.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Get returns one movement
func (l *StockLedger) Get(ctx context.Context, id uuid.UUID) (*MovementResponse, error) {
	m, err := l.movements.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToMovementResponse(m)
	return &resp, nil
}

// List returns a page of movements
func (l *StockLedger) List(ctx context.Context, filter MovementListFilter) (*shared.Paginated[MovementResponse], error) {
	f := listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir)
	movements, total, err := l.movements.FindAll(ctx, inventory.MovementFilter{
		Filter:     f,
		ItemID:     filter.ItemID,
		LocationID: filter.LocationID,
		Status:     inventory.MovementStatus(filter.Status),
		Type:       inventory.MovementType(filter.Type),
		Reference:  filter.Reference,
	})
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToMovementResponses(movements), total, f.Page, f.Limit())
	return &page, nil
}

// Process applies an APPROVED (or previously FAILED) movement.
//
// The movement is first claimed with a conditional update so concurrent
// callers cannot both apply it. A failure while applying rolls the stock
// changes back and records the movement as FAILED in its own transaction.
func (l *StockLedger) Process(ctx context.Context, id uuid.UUID) (*MovementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "process", telemetry.AttrMovementID, id.String())
	defer span.End()

	m, err := l.movements.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.AttrItemID, m.ItemID.String(),
		telemetry.AttrMovementType, string(m.Type),
	)

	now := l.clock.Now()
	if !m.CanProcess() {
		err := inventory.NewInvalidMovementStateError(m.ID, m.Status, "process")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !m.IsDue(now) {
		err := shared.NewDomainErrorf(shared.CodeInvalidMovementState,
			"movement %s is scheduled for %s", m.ID, m.ScheduledAt.Format(time.RFC3339)).
			WithDetail("movement_id", m.ID.String()).
			WithDetail("scheduled_at", m.ScheduledAt)
		telemetry.RecordError(span, err)
		return nil, err
	}

	claimed, err := l.movements.ClaimForProcessing(ctx, id, inventory.ProcessableStatuses, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("claim movement %s: %w", id, err)
	}
	if !claimed {
		current, ferr := l.movements.FindByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		err := inventory.NewInvalidMovementStateError(id, current.Status, "process")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		completed *inventory.Movement
		events    pendingEvents
	)
	elapsed, err := timed(func() error {
		return l.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			events = pendingEvents{}
			mv, err := repos.Movements().FindByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if mv.Status != inventory.MovementStatusInProgress {
				return inventory.NewInvalidMovementStateError(mv.ID, mv.Status, "process")
			}
			applyAt := l.clock.Now()
			cost, err := l.apply(ctx, repos, mv, applyAt, &events)
			if err != nil {
				return err
			}
			if err := mv.Complete(cost, applyAt); err != nil {
				return err
			}
			if err := repos.Movements().Save(ctx, mv); err != nil {
				return err
			}
			events.collect(mv)
			completed = mv
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		l.metrics.MovementProcessed(ctx, string(m.Type), telemetry.OutcomeFailed, elapsed)
		l.markFailed(context.WithoutCancel(ctx), id, err)
		return nil, withMovementDetail(err, id)
	}

	l.metrics.MovementProcessed(ctx, string(completed.Type), telemetry.OutcomeCompleted, elapsed)
	logger.Enrich(ctx, l.logger).Info("Movement processed",
		zap.String("movement_id", completed.ID.String()),
		zap.String("item_id", completed.ItemID.String()),
		zap.String("type", string(completed.Type)),
		zap.Int64("quantity", completed.Quantity),
		zap.Int("attempt", completed.AttemptCount),
		zap.Duration("duration", elapsed),
	)
	events.publish(ctx, l.eventPublisher, l.logger)

	resp := ToMovementResponse(completed)
	return &resp, nil
}

func withMovementDetail(err error, id uuid.UUID) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.WithDetail("movement_id", id.String())
	}
	return fmt.Errorf("process movement %s: %w", id, err)
}

// apply mutates every touched row and returns the unit cost the movement
// was applied at. Rows are locked in StockKey order before any change.
func (l *StockLedger) apply(ctx context.Context, repos TransactionalRepositories, m *inventory.Movement, now time.Time, events *pendingEvents) (decimal.NullDecimal, error) {
	if err := m.Spec().Validate(); err != nil {
		return decimal.NullDecimal{}, err
	}

	keys := m.TouchedKeys()
	levels := make(map[uuid.UUID]*inventory.StockLevel, len(keys))
	for _, key := range keys {
		level, err := repos.StockLevels().GetOrCreateForUpdate(ctx, key.ItemID, key.LocationID, now)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		levels[key.LocationID] = level
	}

	batch, err := lockBatch(ctx, repos, m)
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	var applied decimal.NullDecimal
	switch m.Type {
	case inventory.MovementTypeIn:
		dest := levels[*m.ToLocationID]
		cost := m.UnitCost
		if !cost.Valid && batch != nil {
			cost = batch.UnitCost
		}
		applied = cost
		if !applied.Valid {
			applied = decimal.NewNullDecimal(dest.AverageCost)
		}
		err = dest.Receive(m.Quantity, cost, inventory.StockChangeReceived, now)

	case inventory.MovementTypeOut:
		src := levels[*m.FromLocationID]
		applied = decimal.NewNullDecimal(src.AverageCost)
		err = src.Issue(m.Quantity, inventory.StockChangeIssued, now)

	case inventory.MovementTypeTransfer:
		src, dest := levels[*m.FromLocationID], levels[*m.ToLocationID]
		applied = decimal.NewNullDecimal(src.AverageCost)
		var carried decimal.NullDecimal
		if src.AverageCost.IsPositive() {
			carried = applied
		}
		if err = src.Issue(m.Quantity, inventory.StockChangeTransferOut, now); err == nil {
			err = dest.Receive(m.Quantity, carried, inventory.StockChangeTransferIn, now)
		}

	case inventory.MovementTypeAdjustment:
		e := m.Effects()[0]
		level := levels[e.LocationID]
		applied = m.UnitCost
		if !applied.Valid || e.Delta < 0 {
			applied = decimal.NewNullDecimal(level.AverageCost)
		}
		err = level.Adjust(e.Delta, e.Cause, now)
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	if batch != nil {
		if err := applyBatchEffect(batch, m, now); err != nil {
			return decimal.NullDecimal{}, err
		}
		if err := repos.Batches().Save(ctx, batch); err != nil {
			return decimal.NullDecimal{}, err
		}
	}

	for _, key := range keys {
		level := levels[key.LocationID]
		if err := level.CheckInvariants(); err != nil {
			return decimal.NullDecimal{}, err
		}
		if err := repos.StockLevels().Save(ctx, level); err != nil {
			return decimal.NullDecimal{}, err
		}
		events.collect(level)
	}
	return applied, nil
}

// lockBatch loads the batch a movement names. Transfers leave batch
// quantities untouched because batches are tracked per item. The batch must
// sit at the location the movement touches.
func lockBatch(ctx context.Context, repos TransactionalRepositories, m *inventory.Movement) (*inventory.Batch, error) {
	if m.BatchNumber == "" || m.Type == inventory.MovementTypeTransfer {
		return nil, nil
	}
	batch, err := repos.Batches().FindByItemAndNumberForUpdate(ctx, m.ItemID, m.BatchNumber)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, inventory.NewInvalidMovementError(
				fmt.Sprintf("batch %q does not exist for item %s", m.BatchNumber, m.ItemID)).
				WithDetail("batch_number", m.BatchNumber).
				WithDetail("item_id", m.ItemID.String())
		}
		return nil, err
	}
	if effects := m.Effects(); len(effects) > 0 && effects[0].LocationID != batch.LocationID {
		return nil, inventory.NewInvalidMovementError(
			fmt.Sprintf("batch %q is held at location %s, not %s", m.BatchNumber, batch.LocationID, effects[0].LocationID)).
			WithDetail("batch_number", m.BatchNumber).
			WithDetail("batch_location_id", batch.LocationID.String()).
			WithDetail("location_id", effects[0].LocationID.String())
	}
	return batch, nil
}

func applyBatchEffect(b *inventory.Batch, m *inventory.Movement, now time.Time) error {
	switch m.Type {
	case inventory.MovementTypeIn:
		b.Add(m.Quantity, now)
	case inventory.MovementTypeOut:
		return b.Remove(m.Quantity, now)
	case inventory.MovementTypeAdjustment:
		if delta := m.SignedQuantity(); delta > 0 {
			b.Add(delta, now)
		} else {
			return b.Remove(-delta, now)
		}
	}
	return nil
}

// markFailed records a processing failure on a claimed movement
func (l *StockLedger) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	log := logger.Enrich(ctx, l.logger)
	var events pendingEvents
	err := l.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		events = pendingEvents{}
		m, err := repos.Movements().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if m.Status != inventory.MovementStatusInProgress {
			return nil
		}
		if err := m.Fail(cause.Error(), l.clock.Now()); err != nil {
			return err
		}
		if err := repos.Movements().Save(ctx, m); err != nil {
			return err
		}
		events.collect(m)
		return nil
	})
	if err != nil {
		log.Error("Failed to record movement failure",
			zap.String("movement_id", id.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}

	log.Warn("Movement processing failed",
		zap.String("movement_id", id.String()),
		zap.String("code", shared.CodeOf(cause)),
		zap.Error(cause),
	)
	events.publish(ctx, l.eventPublisher, l.logger)
}

// DueMovementStats summarizes a due-movement run
type DueMovementStats struct {
	TotalDue    int       `json:"total_due"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ProcessDue processes APPROVED movements whose scheduled time has passed.
// Movements claimed by another worker first are skipped.
func (l *StockLedger) ProcessDue(ctx context.Context, limit int) (*DueMovementStats, error) {
	now := l.clock.Now()
	stats := &DueMovementStats{ProcessedAt: now}

	due, err := l.movements.FindDue(ctx, now, limit)
	if err != nil {
		l.logger.Error("Failed to find due movements", zap.Error(err))
		return nil, err
	}
	stats.TotalDue = len(due)
	if stats.TotalDue == 0 {
		l.logger.Debug("No due movements found")
		return stats, nil
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		_, err := l.Process(ctx, due[i].ID)
		switch {
		case err == nil:
			stats.Completed++
		case shared.CodeOf(err) == shared.CodeInvalidMovementState:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}

	l.logger.Info("Completed due movement run",
		zap.Int("total", stats.TotalDue),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// RecoverStuck fails movements left IN_PROGRESS by a crashed process so an
// operator can re-process them
func (l *StockLedger) RecoverStuck(ctx context.Context, limit int) (int, error) {
	cutoff := l.clock.Now().Add(-l.opts.StuckAfter)
	stuck, err := l.movements.FindStuck(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	for i := range stuck {
		l.markFailed(ctx, stuck[i].ID, errors.New("processing was interrupted before completion"))
	}
	if len(stuck) > 0 {
		l.logger.Warn("Recovered stuck movements",
			zap.Int("count", len(stuck)),
			zap.Time("started_before", cutoff),
		)
	}
	return len(stuck), nil
}
