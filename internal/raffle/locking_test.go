package raffle

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rifa-app/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func expectRaffle(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT \* FROM "raffles" WHERE "raffles"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "ticket_price_mxn", "max_tickets_per_purchase", "pool_size", "is_active"}).
			AddRow(1, "Rifa", 150, 3, 100, true))
}

func TestReserveLocksTicketRowsOnPostgres(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb)

	expectRaffle(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "purchases"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tickets" WHERE raffle_id = \$1 AND number IN \(\$2,\$3\) ORDER BY number FOR UPDATE`).
		WithArgs(1, 5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "raffle_id", "number", "status"}).
			AddRow(5, 1, 5, "FREE").
			AddRow(9, 1, 9, "RESERVED"))
	mock.ExpectRollback()

	_, err := svc.ReserveTickets(context.Background(), 1, ReserveRequest{
		Numbers:    []int{9, 5},
		BuyerName:  "Ana",
		BuyerPhone: "5512345678",
	})

	var unavailable *TicketUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 9, unavailable.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLocksPurchaseBeforeTickets(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "purchases" WHERE id = \$1 AND raffle_id = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "raffle_id", "folio", "status"}).
			AddRow(7, 1, "RF26-ABCDEF", "PAID"))
	mock.ExpectQuery(`SELECT tickets\.\* FROM "tickets" JOIN purchase_tickets .* ORDER BY tickets\.number FOR UPDATE`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "raffle_id", "number", "status"}).
			AddRow(3, 1, 3, "PAID"))
	mock.ExpectRollback()

	_, err := svc.CancelPurchase(context.Background(), 1, 7)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageFailureIsWrappedAndRolledBack(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb)

	expectRaffle(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "purchases"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := svc.ReserveTickets(context.Background(), 1, ReserveRequest{
		Numbers:    []int{1},
		BuyerName:  "Ana",
		BuyerPhone: "5512345678",
	})

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardedUpdateRejectsTicketTakenAfterRead(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb, WithFolioGenerator(&fixedFolios{folios: []string{"RF26-AAAAAA"}}))

	expectRaffle(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "purchases"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	// the engine sees both rows FREE, as it would without row locks
	mock.ExpectQuery(`SELECT \* FROM "tickets" WHERE raffle_id = \$1 AND number IN \(\$2,\$3\) ORDER BY number FOR UPDATE`).
		WithArgs(1, 5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "raffle_id", "number", "status"}).
			AddRow(5, 1, 5, "FREE").
			AddRow(9, 1, 9, "FREE"))
	mock.ExpectQuery(`INSERT INTO "purchases" .* RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(40))
	mock.ExpectExec(`INSERT INTO "purchase_tickets"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	// someone else flipped ticket 9 in between: only one row still FREE
	mock.ExpectExec(`UPDATE "tickets" SET .* WHERE id IN \(\$\d+,\$\d+\) AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "tickets" WHERE id IN \(\$1,\$2\) AND status <> \$3 ORDER BY number`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "raffle_id", "number", "status"}).
			AddRow(9, 1, 9, "RESERVED"))
	mock.ExpectRollback()

	p, err := svc.ReserveTickets(context.Background(), 1, ReserveRequest{
		Numbers:    []int{9, 5},
		BuyerName:  "Ana",
		BuyerPhone: "5512345678",
	})

	assert.Nil(t, p)
	var unavailable *TicketUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 9, unavailable.Number)
	assert.Equal(t, models.TicketReserved, unavailable.Status)
	// ExpectationsWereMet fails on an unexpected COMMIT
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceFreeRechecksOwnerUnderLock(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb)

	ticketCols := []string{"id", "raffle_id", "number", "status"}
	purchaseCols := []string{"id", "raffle_id", "folio", "status"}
	ownerQuery := `SELECT "?purchases"?\."?id"? FROM "purchases" JOIN purchase_tickets .*status <> \$2`

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tickets" WHERE id = \$1 AND raffle_id = \$2`).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(10, 1, 10, "RESERVED"))
	// first owner was cancelled by the time its row lock was granted
	mock.ExpectQuery(ownerQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`SELECT \* FROM "purchases" WHERE id = \$1 AND raffle_id = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(7, 1, "RF26-AAAAAA", "CANCELLED"))
	mock.ExpectQuery(`SELECT tickets\.\* FROM "tickets" JOIN purchase_tickets .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(10, 1, 10, "PAID"))
	// and the ticket now belongs to a paid purchase
	mock.ExpectQuery(ownerQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectQuery(`SELECT \* FROM "purchases" WHERE id = \$1 AND raffle_id = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(8, 1, "RF26-BBBBBB", "PAID"))
	mock.ExpectQuery(`SELECT tickets\.\* FROM "tickets" JOIN purchase_tickets .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(10, 1, 10, "PAID"))
	mock.ExpectRollback()

	ticket, err := svc.ForceFreeTicket(context.Background(), 1, 10)

	assert.Nil(t, ticket)
	assert.ErrorIs(t, err, ErrTicketPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
