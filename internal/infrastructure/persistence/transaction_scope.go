package persistence

import (
	"context"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions
type GormTransactionScope struct {
	db     *gorm.DB
	config repositoryConfig
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB, opts ...RepositoryOption) *GormTransactionScope {
	return &GormTransactionScope{db: db, config: newRepositoryConfig(opts)}
}

// Execute runs fn in one transaction. Any error rolls everything back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, config: s.config})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction
type gormTransactionalRepositories struct {
	tx     *gorm.DB
	config repositoryConfig
}

func (r *gormTransactionalRepositories) StockLevels() inventory.StockLevelRepository {
	return NewGormStockLevelRepository(r.tx).WithLowStockSource(r.config.lowStockSource)
}

func (r *gormTransactionalRepositories) Movements() inventory.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

func (r *gormTransactionalRepositories) Reservations() inventory.ReservationRepository {
	return NewGormReservationRepository(r.tx)
}

func (r *gormTransactionalRepositories) Batches() inventory.BatchRepository {
	return NewGormBatchRepository(r.tx)
}

func (r *gormTransactionalRepositories) BatchHistory() inventory.BatchHistoryRepository {
	return NewGormBatchHistoryRepository(r.tx)
}

func (r *gormTransactionalRepositories) Valuations() inventory.ValuationRecordRepository {
	return NewGormValuationRecordRepository(r.tx)
}

func (r *gormTransactionalRepositories) Alerts() inventory.StockAlertRepository {
	return NewGormStockAlertRepository(r.tx)
}

var (
	_ appinv.TransactionScope          = (*GormTransactionScope)(nil)
	_ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)

// Repositories bundles the non-transactional repositories for wiring
type Repositories struct {
	StockLevels  *GormStockLevelRepository
	Movements    *GormMovementRepository
	Reservations *GormReservationRepository
	Batches      *GormBatchRepository
	BatchHistory *GormBatchHistoryRepository
	Valuations   *GormValuationRecordRepository
	Alerts       *GormStockAlertRepository
	Scope        *GormTransactionScope
}

// RepositoryOption configures NewRepositories
type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	lowStockSource inventory.LowStockThresholdSource
}

func newRepositoryConfig(opts []RepositoryOption) repositoryConfig {
	cfg := repositoryConfig{lowStockSource: inventory.ThresholdSourceReorderPoint}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLowStockSource sets the threshold source new stock level rows are
// created with
func WithLowStockSource(source inventory.LowStockThresholdSource) RepositoryOption {
	return func(c *repositoryConfig) {
		if source != "" {
			c.lowStockSource = source
		}
	}
}

// NewRepositories builds every repository on db
func NewRepositories(db *gorm.DB, opts ...RepositoryOption) *Repositories {
	cfg := newRepositoryConfig(opts)
	return &Repositories{
		StockLevels:  NewGormStockLevelRepository(db).WithLowStockSource(cfg.lowStockSource),
		Movements:    NewGormMovementRepository(db),
		Reservations: NewGormReservationRepository(db),
		Batches:      NewGormBatchRepository(db),
		BatchHistory: NewGormBatchHistoryRepository(db),
		Valuations:   NewGormValuationRecordRepository(db),
		Alerts:       NewGormStockAlertRepository(db),
		Scope:        NewGormTransactionScope(db, opts...),
	}
}
