package voucher

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var voucherColumns = []string{
	"id", "code", "discount_type", "discount_value", "max_discount", "min_order_value",
	"total_quantity", "used_quantity", "limit_per_user", "starts_at", "ends_at", "active",
}

func intp(v int) *int { return &v }

// summerSale returns rows for an active 10% voucher valid around the engine's
// frozen clock.
func summerSale(now time.Time, used int, limitPerUser *int, minOrder *int64) *pgxmock.Rows {
	return pgxmock.NewRows(voucherColumns).AddRow(
		"v1", "SUMMER10", TypePercentage, int64(10), int64p(40_000), minOrder,
		100, used, limitPerUser, now.Add(-time.Hour), now.Add(time.Hour), true,
	)
}

func newTestEngine(t *testing.T) (*Engine, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	e := NewEngine(mock)
	e.now = func() time.Time { return now }
	return e, mock, now
}

func expectGetByCode(mock pgxmock.PgxPoolIface) *pgxmock.ExpectedQuery {
	return mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, discount_type")).WithArgs("SUMMER10")
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid voucher passes every check", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		expectGetByCode(mock).WillReturnRows(summerSale(now, 3, nil, nil))

		v, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.NoError(t, err)
		require.Equal(t, "SUMMER10", v.Code)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		e, mock, _ := newTestEngine(t)
		expectGetByCode(mock).WillReturnError(pgx.ErrNoRows)

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("inactive voucher reads as not found", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		rows := pgxmock.NewRows(voucherColumns).AddRow(
			"v1", "SUMMER10", TypePercentage, int64(10), nil, nil,
			100, 0, nil, now.Add(-time.Hour), now.Add(time.Hour), false,
		)
		expectGetByCode(mock).WillReturnRows(rows)

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not started yet", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		rows := pgxmock.NewRows(voucherColumns).AddRow(
			"v1", "SUMMER10", TypePercentage, int64(10), nil, nil,
			100, 0, nil, now.Add(time.Minute), now.Add(time.Hour), true,
		)
		expectGetByCode(mock).WillReturnRows(rows)

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.ErrorIs(t, err, ErrNotStarted)
	})

	t.Run("expired at the end instant", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		rows := pgxmock.NewRows(voucherColumns).AddRow(
			"v1", "SUMMER10", TypePercentage, int64(10), nil, nil,
			100, 0, nil, now.Add(-time.Hour), now, true,
		)
		expectGetByCode(mock).WillReturnRows(rows)

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("exhausted", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		expectGetByCode(mock).WillReturnRows(summerSale(now, 100, nil, nil))

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("minimum order not met", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		expectGetByCode(mock).WillReturnRows(summerSale(now, 0, nil, int64p(100_000)))

		_, err := e.Validate(ctx, "SUMMER10", 99_999, "u1")
		require.ErrorIs(t, err, ErrMinOrderNotMet)
	})

	t.Run("per-user limit reached", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		expectGetByCode(mock).WillReturnRows(summerSale(now, 0, intp(2), nil))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM voucher_usages")).
			WithArgs("v1", "u1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.ErrorIs(t, err, ErrUserLimitReached)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("per-user limit with headroom", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		expectGetByCode(mock).WillReturnRows(summerSale(now, 0, intp(2), nil))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM voucher_usages")).
			WithArgs("v1", "u1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

		_, err := e.Validate(ctx, "SUMMER10", 500_000, "u1")
		require.NoError(t, err)
	})
}

func TestPreview(t *testing.T) {
	ctx := context.Background()

	e, mock, now := newTestEngine(t)
	expectGetByCode(mock).WillReturnRows(summerSale(now, 0, nil, nil))

	// 10% of 500,000 is 50,000, capped at 40,000
	quote, err := e.Preview(ctx, "SUMMER10", 500_000, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(40_000), quote.Discount)
	require.Equal(t, int64(460_000), quote.FinalTotal)
}

func TestCommitTx(t *testing.T) {
	ctx := context.Background()

	t.Run("increments and records usage", func(t *testing.T) {
		e, mock, _ := newTestEngine(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("used_quantity = used_quantity + 1")).
			WithArgs("v1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO voucher_usages")).
			WithArgs(pgxmock.AnyArg(), "v1", "u1", "o1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, e.CommitTx(ctx, tx, "v1", "u1", "o1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("capacity race loses cleanly", func(t *testing.T) {
		e, mock, _ := newTestEngine(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("used_quantity = used_quantity + 1")).
			WithArgs("v1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)
		require.ErrorIs(t, e.CommitTx(ctx, tx, "v1", "u1", "o1"), ErrExhausted)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("per-user race loses cleanly", func(t *testing.T) {
		e, mock, _ := newTestEngine(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("used_quantity = used_quantity + 1")).
			WithArgs("v1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO voucher_usages")).
			WithArgs(pgxmock.AnyArg(), "v1", "u1", "o1").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)
		require.ErrorIs(t, e.CommitTx(ctx, tx, "v1", "u1", "o1"), ErrUserLimitReached)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReverseTx(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes usage and decrements", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		mock.ExpectBegin()
		expectGetByCode(mock).WillReturnRows(summerSale(now, 5, nil, nil))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM voucher_usages")).
			WithArgs("v1", "o1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(regexp.QuoteMeta("GREATEST(used_quantity - 1, 0)")).
			WithArgs("v1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, e.ReverseTx(ctx, tx, "SUMMER10", "o1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no usage row is a no-op", func(t *testing.T) {
		e, mock, now := newTestEngine(t)
		mock.ExpectBegin()
		expectGetByCode(mock).WillReturnRows(summerSale(now, 5, nil, nil))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM voucher_usages")).
			WithArgs("v1", "o1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, e.ReverseTx(ctx, tx, "SUMMER10", "o1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
