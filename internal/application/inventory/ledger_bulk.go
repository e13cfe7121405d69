package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SubmitBulk records many movements.
//
// In atomic mode every request is validated first and all movements are
// inserted in one transaction, so either all are persisted or none are.
// Idempotency keys are rejected in atomic mode. Otherwise each request is
// submitted independently and the response reports the outcome per index.
func (l *StockLedger) SubmitBulk(ctx context.Context, req BulkSubmitRequest) (*BulkSubmitResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "submit_bulk",
		"atomic", req.Atomic,
		"count", len(req.Movements),
	)
	defer span.End()

	n := len(req.Movements)
	if n == 0 {
		err := shared.NewDomainError(shared.CodeValidation, "bulk submission must contain at least one movement")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if n > l.opts.BulkMaxItems {
		err := shared.NewDomainErrorf(shared.CodeValidation,
			"bulk submission of %d movements exceeds the limit of %d", n, l.opts.BulkMaxItems).
			WithDetail("count", n).
			WithDetail("max", l.opts.BulkMaxItems)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		resp *BulkSubmitResponse
		err  error
	)
	if req.Atomic {
		resp, err = l.submitAtomic(ctx, req.Movements)
	} else {
		resp, err = l.submitEach(ctx, req.Movements)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Enrich(ctx, l.logger).Info("Bulk movement submission finished",
		zap.Bool("atomic", resp.Atomic),
		zap.Int("total", resp.Total),
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}

func (l *StockLedger) submitAtomic(ctx context.Context, reqs []SubmitMovementRequest) (*BulkSubmitResponse, error) {
	now := l.clock.Now()
	movements := make([]*inventory.Movement, 0, len(reqs))
	for i, r := range reqs {
		if r.IdempotencyKey != "" {
			return nil, shared.NewDomainError(shared.CodeValidation,
				"idempotency keys are not supported in atomic bulk submissions").
				WithDetail("index", i)
		}
		m, err := inventory.NewMovement(r.toSpec(), now)
		if err == nil {
			err = l.checkAvailability(ctx, m, now)
		}
		if err != nil {
			return nil, withIndex(err, i)
		}
		movements = append(movements, m)
	}

	err := l.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Movements().CreateBatch(ctx, movements)
	})
	if err != nil {
		return nil, fmt.Errorf("insert bulk movements: %w", err)
	}

	resp := &BulkSubmitResponse{Atomic: true, Total: len(movements), Succeeded: len(movements)}
	resp.Results = make([]BulkItemResult, len(movements))
	for i, m := range movements {
		m.ClearDomainEvents()
		l.metrics.MovementSubmitted(ctx, string(m.Type), string(m.Priority))
		l.scheduleIfDeferred(ctx, m, now)
		mr := ToMovementResponse(m)
		resp.Results[i] = BulkItemResult{Index: i, Movement: &mr}
	}
	return resp, nil
}

func (l *StockLedger) submitEach(ctx context.Context, reqs []SubmitMovementRequest) (*BulkSubmitResponse, error) {
	results := make([]BulkItemResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.BulkConcurrency)
	for i := range reqs {
		g.Go(func() error {
			results[i].Index = i
			m, err := l.submit(gctx, reqs[i])
			if err != nil {
				results[i].Error = toBulkItemError(err)
				return nil
			}
			results[i].Movement = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &BulkSubmitResponse{Total: len(reqs), Results: results}
	for _, r := range results {
		if r.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	return resp, nil
}

func withIndex(err error, index int) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.WithDetail("index", index)
	}
	return fmt.Errorf("movement %d: %w", index, err)
}

func toBulkItemError(err error) *BulkItemError {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return &BulkItemError{Code: de.Code, Message: de.Message, Details: de.Details}
	}
	return &BulkItemError{Code: "INTERNAL_ERROR", Message: err.Error()}
}
