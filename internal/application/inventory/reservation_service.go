package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reservation metric actions
const (
	reservationReserved  = "reserved"
	reservationReleased  = "released"
	reservationFulfilled = "fulfilled"
	reservationExpired   = "expired"
)

const defaultSweepBatchSize = 100

// ReservationManager places, releases and fulfills holds on available stock.
// Every mutation changes the reservation row and its StockLevel row in one
// transaction, locking the reservation first.
type ReservationManager struct {
	scope          TransactionScope
	reservations   inventory.ReservationRepository
	clock          shared.Clock
	defaultTTL     time.Duration
	sweepBatchSize int
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
}

// NewReservationManager creates a new ReservationManager. A zero defaultTTL
// leaves reservations without expiry unless the caller sets one.
func NewReservationManager(
	scope TransactionScope,
	reservations inventory.ReservationRepository,
	clock shared.Clock,
	defaultTTL time.Duration,
	logger *zap.Logger,
) *ReservationManager {
	return &ReservationManager{
		scope:          scope,
		reservations:   reservations,
		clock:          clock,
		defaultTTL:     defaultTTL,
		sweepBatchSize: defaultSweepBatchSize,
		logger:         logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ReservationManager) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the ledger metrics recorder
func (s *ReservationManager) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// Reserve places a hold. The StockLevel row is read under lock so two
// concurrent holds cannot both consume the same available quantity.
func (s *ReservationManager) Reserve(ctx context.Context, req ReserveStockRequest) (*ReservationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "reserve",
		telemetry.AttrItemID, req.ItemID.String(),
		telemetry.AttrLocationID, req.LocationID.String(),
		telemetry.AttrQuantity, req.Quantity,
	)
	defer span.End()

	var (
		created *inventory.Reservation
		events  pendingEvents
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		events = pendingEvents{}
		now := s.clock.Now()

		expiresAt := req.ExpiresAt
		if expiresAt == nil && s.defaultTTL > 0 {
			at := now.Add(s.defaultTTL)
			expiresAt = &at
		}
		r, err := inventory.NewReservation(req.ItemID, req.LocationID, req.Quantity,
			req.ReferenceType, req.ReferenceID, expiresAt, now)
		if err != nil {
			return err
		}

		level, err := repos.StockLevels().FindByKeyForUpdate(ctx, req.ItemID, req.LocationID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return inventory.NewInsufficientAvailableStockError(req.ItemID, req.LocationID, req.Quantity, 0)
			}
			return err
		}
		if err := level.Reserve(req.Quantity, now); err != nil {
			return err
		}
		if err := repos.StockLevels().Save(ctx, level); err != nil {
			return err
		}
		if err := repos.Reservations().Create(ctx, r); err != nil {
			return err
		}
		events.collect(level, r)
		created = r
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.AttrReservationID, created.ID.String())
	s.metrics.Reservation(ctx, reservationReserved)
	logger.Enrich(ctx, s.logger).Info("Stock reserved",
		zap.String("reservation_id", created.ID.String()),
		zap.String("item_id", created.ItemID.String()),
		zap.String("location_id", created.LocationID.String()),
		zap.Int64("quantity", created.Quantity),
		zap.String("reference_type", created.ReferenceType),
		zap.String("reference_id", created.ReferenceID),
	)
	events.publish(ctx, s.eventPublisher, s.logger)

	resp := ToReservationResponse(created)
	return &resp, nil
}

// Release frees an ACTIVE hold
func (s *ReservationManager) Release(ctx context.Context, id uuid.UUID) (*ReservationResponse, error) {
	r, err := s.release(ctx, id, inventory.ReleaseReasonManual)
	if err != nil {
		return nil, err
	}
	s.metrics.Reservation(ctx, reservationReleased)
	resp := ToReservationResponse(r)
	return &resp, nil
}

func (s *ReservationManager) release(ctx context.Context, id uuid.UUID, reason string) (*inventory.Reservation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "release",
		telemetry.AttrReservationID, id.String(),
		"reason", reason,
	)
	defer span.End()

	r, err := s.mutate(ctx, id, "release", func(r *inventory.Reservation, level *inventory.StockLevel, now time.Time) error {
		if reason == inventory.ReleaseReasonExpired && !r.IsExpired(now) {
			return inventory.NewInvalidReservationStateError(r.ID, r.Status, "expire")
		}
		if err := r.Release(reason, now); err != nil {
			return err
		}
		return level.ReleaseReservation(r.Quantity, now)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Enrich(ctx, s.logger).Info("Reservation released",
		zap.String("reservation_id", r.ID.String()),
		zap.String("reason", reason),
		zap.Int64("quantity", r.Quantity),
	)
	return r, nil
}

// Fulfill converts an ACTIVE hold into a permanent decrement of on-hand stock
func (s *ReservationManager) Fulfill(ctx context.Context, id uuid.UUID) (*ReservationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "fulfill", telemetry.AttrReservationID, id.String())
	defer span.End()

	r, err := s.mutate(ctx, id, "fulfill", func(r *inventory.Reservation, level *inventory.StockLevel, now time.Time) error {
		if err := r.Fulfill(now); err != nil {
			return err
		}
		return level.FulfillReservation(r.Quantity, now)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.Reservation(ctx, reservationFulfilled)
	logger.Enrich(ctx, s.logger).Info("Reservation fulfilled",
		zap.String("reservation_id", r.ID.String()),
		zap.String("item_id", r.ItemID.String()),
		zap.String("location_id", r.LocationID.String()),
		zap.Int64("quantity", r.Quantity),
	)
	resp := ToReservationResponse(r)
	return &resp, nil
}

// mutate locks a reservation and then its StockLevel row, applies fn and
// saves both
func (s *ReservationManager) mutate(ctx context.Context, id uuid.UUID, op string, fn func(*inventory.Reservation, *inventory.StockLevel, time.Time) error) (*inventory.Reservation, error) {
	var (
		updated *inventory.Reservation
		events  pendingEvents
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		events = pendingEvents{}
		r, err := repos.Reservations().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsActive() {
			return inventory.NewInvalidReservationStateError(r.ID, r.Status, op)
		}
		level, err := repos.StockLevels().FindByKeyForUpdate(ctx, r.ItemID, r.LocationID)
		if err != nil {
			return err
		}
		if err := fn(r, level, s.clock.Now()); err != nil {
			return err
		}
		if err := repos.StockLevels().Save(ctx, level); err != nil {
			return err
		}
		if err := repos.Reservations().Save(ctx, r); err != nil {
			return err
		}
		events.collect(level, r)
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	events.publish(ctx, s.eventPublisher, s.logger)
	return updated, nil
}

// Get returns one reservation
func (s *ReservationManager) Get(ctx context.Context, id uuid.UUID) (*ReservationResponse, error) {
	r, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToReservationResponse(r)
	return &resp, nil
}

// List returns a page of reservations
func (s *ReservationManager) List(ctx context.Context, filter ReservationListFilter) (*shared.Paginated[ReservationResponse], error) {
	f := listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir)
	reservations, total, err := s.reservations.FindAll(ctx, inventory.ReservationFilter{
		Filter:        f,
		ItemID:        filter.ItemID,
		LocationID:    filter.LocationID,
		Status:        inventory.ReservationStatus(filter.Status),
		ReferenceType: filter.ReferenceType,
		ReferenceID:   filter.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToReservationResponses(reservations), total, f.Page, f.Limit())
	return &page, nil
}

// ExpiredReservationStats contains statistics about an expiry sweep
type ExpiredReservationStats struct {
	TotalExpired int       `json:"total_expired"`
	Released     int       `json:"released"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// ReleaseExpired releases every ACTIVE reservation past its expiry through
// the same path as Release. A hold fulfilled or released concurrently is
// counted as skipped.
func (s *ReservationManager) ReleaseExpired(ctx context.Context) (*ExpiredReservationStats, error) {
	now := s.clock.Now()
	stats := &ExpiredReservationStats{ProcessedAt: now}

	for {
		expired, err := s.reservations.FindExpired(ctx, now, s.sweepBatchSize)
		if err != nil {
			s.logger.Error("Failed to find expired reservations", zap.Error(err))
			return stats, err
		}
		stats.TotalExpired += len(expired)

		progressed := 0
		for i := range expired {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			_, err := s.release(ctx, expired[i].ID, inventory.ReleaseReasonExpired)
			switch {
			case err == nil:
				stats.Released++
				progressed++
				s.metrics.Reservation(ctx, reservationExpired)
			case shared.CodeOf(err) == shared.CodeInvalidReservationState:
				stats.Skipped++
				progressed++
			default:
				stats.Failed++
				s.logger.Error("Failed to release expired reservation",
					zap.String("reservation_id", expired[i].ID.String()),
					zap.Error(err),
				)
			}
		}
		if len(expired) < s.sweepBatchSize || progressed == 0 {
			break
		}
	}

	if stats.TotalExpired == 0 {
		s.logger.Debug("No expired reservations found")
		return stats, nil
	}
	s.logger.Info("Completed expired reservation release",
		zap.Int("total", stats.TotalExpired),
		zap.Int("released", stats.Released),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
