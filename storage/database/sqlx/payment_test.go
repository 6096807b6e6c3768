package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/payment"
	sqlxrepos "github.com/trezcool/ada/storage/database/sqlx"
	"github.com/trezcool/ada/testutil"
	"github.com/trezcool/ada/testutil/dbtest"
)

func TestPaymentRepository(t *testing.T) {
	env := dbtest.NewEnv(t)
	ctx := context.Background()
	std := env.CreateStudent(t, "ADM001", "Amani", 0)
	repo := sqlxrepos.NewPaymentRepository(env.DB)

	day := func(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }
	newPayment := func(receiptNo, instrument, ref string, paidOn time.Time) payment.Payment {
		return payment.Payment{
			StudentID:     std.ID,
			Amount:        decimal.NewFromInt(100),
			Instrument:    instrument,
			ReferenceCode: ref,
			RecorderID:    1,
			PaidOn:        paidOn,
			RecordedAt:    time.Now().UTC(),
			ReceiptNumber: receiptNo,
		}
	}

	_, err := repo.CreatePayment(ctx, newPayment("AAAA0001", payment.InstrumentMobileMoney, "MP1", day(1)))
	require.NoError(t, err)

	t.Run("reference code is unique per instrument", func(t *testing.T) {
		_, err := repo.CreatePayment(ctx, newPayment("AAAA0002", payment.InstrumentMobileMoney, "MP1", day(2)))
		assert.Equal(t, payment.ErrDuplicatePayment, errors.Cause(err))

		_, err = repo.CreatePayment(ctx, newPayment("AAAA0003", payment.InstrumentBankTransfer, "MP1", day(2)))
		assert.NoError(t, err)
	})

	t.Run("payments without reference code", func(t *testing.T) {
		_, err := repo.CreatePayment(ctx, newPayment("AAAA0004", payment.InstrumentCash, "", day(3)))
		require.NoError(t, err)
		_, err = repo.CreatePayment(ctx, newPayment("AAAA0005", payment.InstrumentCash, "", day(3)))
		require.NoError(t, err)
	})

	t.Run("in-kind detail", func(t *testing.T) {
		p, err := repo.CreatePayment(ctx, newPayment("AAAA0006", "maize", "", day(4)))
		require.NoError(t, err)
		_, err = repo.CreateContribution(ctx, payment.Contribution{
			PaymentID:      p.ID,
			Commodity:      "maize",
			Quantity:       decimal.NewFromInt(10),
			RateApplied:    decimal.NewFromInt(30),
			CashEquivalent: decimal.NewFromInt(300),
		})
		require.NoError(t, err)

		got, err := repo.GetPaymentByReceipt(ctx, "AAAA0006")
		require.NoError(t, err)
		require.NotNil(t, got.Contribution)
		testutil.AssertMoney(t, "300", got.Contribution.CashEquivalent)
		assert.True(t, got.IsInKind())
	})

	t.Run("latest first", func(t *testing.T) {
		got, err := repo.QueryPayments(ctx, std.ID, core.Page{Limit: 10})
		require.NoError(t, err)
		receipts := make([]string, 0, len(got))
		for _, p := range got {
			receipts = append(receipts, p.ReceiptNumber)
		}
		assert.Equal(t, []string{"AAAA0006", "AAAA0005", "AAAA0004", "AAAA0003", "AAAA0001"}, receipts)
		assert.True(t, day(1).Equal(got[4].PaidOn), "paid_on = %v", got[4].PaidOn)

		got, err = repo.QueryPayments(ctx, std.ID, core.Page{Limit: 2, Offset: 4})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "AAAA0001", got[0].ReceiptNumber)
	})

	t.Run("lookups", func(t *testing.T) {
		got, err := repo.GetPaymentByReference(ctx, payment.InstrumentMobileMoney, "MP1")
		require.NoError(t, err)
		assert.Equal(t, "AAAA0001", got.ReceiptNumber)
		assert.Nil(t, got.Contribution)

		_, err = repo.GetPaymentByReference(ctx, payment.InstrumentCheque, "MP1")
		assert.Equal(t, payment.ErrNotFound, errors.Cause(err))
		_, err = repo.GetPaymentByReceipt(ctx, "ZZZZ9999")
		assert.Equal(t, payment.ErrReceiptNotFound, errors.Cause(err))

		exists, err := repo.ReceiptExists(ctx, "AAAA0004")
		require.NoError(t, err)
		assert.True(t, exists)

		sum, err := repo.SumPayments(ctx, std.ID)
		require.NoError(t, err)
		testutil.AssertMoney(t, "500", sum)
	})
}
