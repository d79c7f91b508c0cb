package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront/internal/model"
	appErrors "storefront/pkg/errors"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newGormMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

func TestApprovalTransitionStatusIsConditional(t *testing.T) {
	db, mock := newGormMock(t)
	repo := NewApprovalRepository(db)
	id := uuid.New()
	reviewer := uuid.New()
	now := time.Now()

	update := regexp.QuoteMeta(`UPDATE "approval_requests" SET`) + `.*id = \$\d+ AND status = \$\d+`

	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.TransitionStatus(context.Background(), id, model.ApprovalApproved, reviewer, "ok", now))

	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.TransitionStatus(context.Background(), id, model.ApprovalApproved, reviewer, "again", now)
	require.ErrorIs(t, err, appErrors.ErrAlreadyResolved)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalFindPendingByLockKeyMiss(t *testing.T) {
	db, mock := newGormMock(t)
	repo := NewApprovalRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "approval_requests" WHERE lock_key = $1 AND status = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "lock_key", "status"}))

	_, err := repo.FindPendingByLockKey(context.Background(), "product:abc")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalListPendingByTargetsSkipsEmptyInput(t *testing.T) {
	db, mock := newGormMock(t)
	repo := NewApprovalRepository(db)

	requests, err := repo.ListPendingByTargets(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, requests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStockMovementSumByProduct(t *testing.T) {
	db, mock := newGormMock(t)
	repo := NewStockMovementRepository(db)
	productID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(stock_in - stock_out), 0) FROM "stock_movements" WHERE product_id = $1`)).
		WithArgs(productID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7))

	sum, err := repo.SumByProduct(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, 7, sum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxJoinsOuterTransaction(t *testing.T) {
	db, mock := newGormMock(t)
	txm := NewTransactionManager(db)
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "approval_requests" SET`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := txm.RunInTx(context.Background(), func(outer context.Context) error {
		require.True(t, InTx(outer))
		return txm.RunInTx(outer, func(inner context.Context) error {
			return repo.TransitionStatus(inner, uuid.New(), model.ApprovalRejected, uuid.New(), "", time.Now())
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db, mock := newGormMock(t)
	txm := NewTransactionManager(db)
	boom := errors.New("replay failed")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := txm.RunInTx(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, InTx(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
