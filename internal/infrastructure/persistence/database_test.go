package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNewDatabase(t *testing.T) {
	t.Run("opens sqlite and migrates the ledger tables", func(t *testing.T) {
		cfg := &config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		}
		db, err := NewDatabase(cfg, nil)
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, config.DriverSQLite, db.Driver)
		require.NoError(t, db.Ping(context.Background()))
		require.NoError(t, AutoMigrate(context.Background(), db.DB))

		for _, model := range Models() {
			assert.True(t, db.DB.Migrator().HasTable(model), "%T", model)
		}

		stats, err := db.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.MaxOpenConnections)
	})

	t.Run("rejects an unknown driver", func(t *testing.T) {
		_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}

func TestDatabase_Transaction(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		gdb, mock, _ := newMockDB(t)
		db := &Database{DB: gdb, Driver: config.DriverPostgres}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "movements"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.Transaction(context.Background(), func(tx *gorm.DB) error {
			_, err := NewGormMovementRepository(tx).ClaimForProcessing(context.Background(), uuid.New(), inventory.ProcessableStatuses, testNow)
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		gdb, mock, _ := newMockDB(t)
		db := &Database{DB: gdb}

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Transaction(context.Background(), func(tx *gorm.DB) error {
			return errors.New("abort")
		})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "idx_batches_item_number" (SQLSTATE 23505)`)))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: batches.item_id, batches.batch_number")))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}
