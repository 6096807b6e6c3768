package payment_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/testutil"
	"github.com/trezcool/ada/testutil/dbtest"
)

const clerkID = 7

func setObligation(t *testing.T, env *dbtest.Env, studentID int64, total, bus string) {
	t.Helper()
	busFee := testutil.Dec(t, bus)
	_, err := env.Fees.SetObligation(context.Background(), 1, studentID, fee.NewObligation{
		TotalFees: testutil.Dec(t, total),
		BusFee:    &busFee,
	})
	require.NoError(t, err)
}

func pay(t *testing.T, env *dbtest.Env, studentID int64, amount, instrument, code string) (payment.Receipt, error) {
	t.Helper()
	return env.Payments.RecordPayment(context.Background(), payment.NewPayment{
		StudentID:     studentID,
		Amount:        testutil.Dec(t, amount),
		Instrument:    instrument,
		ReferenceCode: code,
		RecorderID:    clerkID,
	})
}

func contribute(t *testing.T, env *dbtest.Env, studentID int64, commodity, qty string) (payment.Receipt, error) {
	t.Helper()
	return env.Payments.RecordContribution(context.Background(), payment.NewContribution{
		StudentID:  studentID,
		Commodity:  commodity,
		Quantity:   testutil.Dec(t, qty),
		RecorderID: clerkID,
	})
}

func assertBalance(t *testing.T, env *dbtest.Env, studentID int64, want string) {
	t.Helper()
	bal, err := env.Payments.Balance(context.Background(), studentID)
	require.NoError(t, err)
	testutil.AssertMoney(t, want, bal, "balance")
}

func TestService_ledgerScenario(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM001", "Amani Baraka", 0)

	setObligation(t, env, std.ID, "1000", "0")
	assertBalance(t, env, std.ID, "1000")

	_, err := pay(t, env, std.ID, "500", payment.InstrumentCash, "")
	require.NoError(t, err)
	assertBalance(t, env, std.ID, "500")

	_, err = contribute(t, env, std.ID, "maize", "10")
	require.NoError(t, err)
	assertBalance(t, env, std.ID, "200")

	_, err = pay(t, env, std.ID, "200", payment.InstrumentMobileMoney, "MP123")
	require.NoError(t, err)
	assertBalance(t, env, std.ID, "0")

	for _, amount := range []string{"200", "1", "999.99"} {
		_, err = pay(t, env, std.ID, amount, payment.InstrumentMobileMoney, "MP123")
		var dupErr *payment.DuplicatePaymentError
		require.True(t, errors.As(err, &dupErr), "RecordPayment(%s) error = %v, want *DuplicatePaymentError", amount, err)
		assert.Equal(t, payment.InstrumentMobileMoney, dupErr.Instrument)
		assert.True(t, errors.Is(err, payment.ErrDuplicatePayment))
		assertBalance(t, env, std.ID, "0")
	}

	payments, err := env.Payments.PaymentsForStudent(context.Background(), std.ID, core.Page{})
	require.NoError(t, err)
	assert.Len(t, payments, 3)

	st, err := env.Payments.Statement(context.Background(), std.ID)
	require.NoError(t, err)
	testutil.AssertMoney(t, "1000", st.Expected, "expected")
	testutil.AssertMoney(t, "1000", st.Paid, "paid")
}

func TestService_balanceIdentity(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM002", "Neema", 0)
	setObligation(t, env, std.ID, "1234.50", "60")

	amounts := []string{"100", "0.01", "250.25", "33.33", "1500"}
	paid := decimal.Zero
	for i, amt := range amounts {
		_, err := pay(t, env, std.ID, amt, payment.InstrumentBankTransfer, fmt.Sprintf("BT-%d", i))
		require.NoError(t, err)
		paid = paid.Add(testutil.Dec(t, amt))

		st, err := env.Payments.Statement(context.Background(), std.ID)
		require.NoError(t, err)
		testutil.AssertMoney(t, "1294.50", st.Expected)
		testutil.AssertMoney(t, paid.String(), st.Paid)
		testutil.AssertMoney(t, st.Expected.Sub(paid).String(), st.Balance)
	}
	// overpaid: negative balance is credit
	assertBalance(t, env, std.ID, "-589.09")
}

func TestService_Balance_zeroDefault(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM003", "Juma", 0)

	assertBalance(t, env, std.ID, "0")

	st, err := env.Payments.Statement(context.Background(), std.ID)
	require.NoError(t, err)
	testutil.AssertMoney(t, "0", st.Obligation.TotalFees)
	testutil.AssertMoney(t, "0", st.Obligation.BusFee)
	testutil.AssertMoney(t, "0", st.Obligation.BoardingFee)
}

func TestService_RecordPayment_duplicates(t *testing.T) {
	env := dbtest.NewEnv(t)
	std1 := env.CreateStudent(t, "ADM010", "Asha", 0)
	std2 := env.CreateStudent(t, "ADM011", "Baraka", 0)

	first, err := pay(t, env, std1.ID, "100", payment.InstrumentMobileMoney, "QX77")
	require.NoError(t, err)

	tests := []struct {
		name       string
		studentID  int64
		instrument string
		code       string
		wantDup    bool
	}{
		{name: "same code same instrument", studentID: std1.ID, instrument: payment.InstrumentMobileMoney, code: "QX77", wantDup: true},
		{name: "same code other student", studentID: std2.ID, instrument: payment.InstrumentMobileMoney, code: "QX77", wantDup: true},
		{name: "code is trimmed", studentID: std1.ID, instrument: " Mobile-Money ", code: " QX77 ", wantDup: true},
		{name: "same code other instrument", studentID: std1.ID, instrument: payment.InstrumentCheque, code: "QX77"},
		{name: "other code", studentID: std1.ID, instrument: payment.InstrumentMobileMoney, code: "QX78"},
		{name: "no code", studentID: std1.ID, instrument: payment.InstrumentMobileMoney},
		{name: "no code again", studentID: std1.ID, instrument: payment.InstrumentMobileMoney},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pay(t, env, tt.studentID, "50", tt.instrument, tt.code)
			if !tt.wantDup {
				assert.NoError(t, err)
				return
			}
			var dupErr *payment.DuplicatePaymentError
			if assert.True(t, errors.As(err, &dupErr), "error = %v", err) {
				assert.Equal(t, first.ReceiptNumber, dupErr.ReceiptNumber)
				assert.Contains(t, dupErr.Error(), "mobile-money code")
			}
		})
	}

	assertBalance(t, env, std1.ID, "-300") // 100 + 4 x 50
	assertBalance(t, env, std2.ID, "0")
}

func TestService_RecordPayment_concurrentDuplicates(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM012", "Zawadi", 0)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Payments.RecordPayment(context.Background(), payment.NewPayment{
				StudentID:     std.ID,
				Amount:        decimal.NewFromInt(10),
				Instrument:    payment.InstrumentMobileMoney,
				ReferenceCode: "RACE1",
				RecorderID:    clerkID,
			})
		}(i)
	}
	wg.Wait()

	var ok, dups int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, payment.ErrDuplicatePayment):
			dups++
		default:
			t.Errorf("RecordPayment() unexpected error = %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
	assertBalance(t, env, std.ID, "-10")
}

func TestService_RecordPayment_validation(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM020", "Imani", 0)

	tests := []struct {
		name    string
		np      payment.NewPayment
		wantErr func(error) bool
	}{
		{
			name:    "zero amount",
			np:      payment.NewPayment{StudentID: std.ID, Amount: decimal.Zero, Instrument: "cash", RecorderID: clerkID},
			wantErr: core.IsValidationError,
		},
		{
			name:    "negative amount",
			np:      payment.NewPayment{StudentID: std.ID, Amount: decimal.NewFromInt(-5), Instrument: "cash", RecorderID: clerkID},
			wantErr: core.IsValidationError,
		},
		{
			name:    "sub-cent amount",
			np:      payment.NewPayment{StudentID: std.ID, Amount: decimal.New(1, -3), Instrument: "cash", RecorderID: clerkID},
			wantErr: core.IsValidationError,
		},
		{
			name:    "unknown instrument",
			np:      payment.NewPayment{StudentID: std.ID, Amount: decimal.NewFromInt(5), Instrument: "bitcoin", RecorderID: clerkID},
			wantErr: core.IsValidationError,
		},
		{
			name:    "commodity is not a cash instrument",
			np:      payment.NewPayment{StudentID: std.ID, Amount: decimal.NewFromInt(5), Instrument: "maize", RecorderID: clerkID},
			wantErr: core.IsValidationError,
		},
		{
			name:    "no recorder",
			np:      payment.NewPayment{StudentID: std.ID, Amount: decimal.NewFromInt(5), Instrument: "cash"},
			wantErr: core.IsValidationError,
		},
		{
			name:    "unknown student",
			np:      payment.NewPayment{StudentID: std.ID + 100, Amount: decimal.NewFromInt(5), Instrument: "cash", RecorderID: clerkID},
			wantErr: func(err error) bool { return errors.Cause(err) == student.ErrNotFound },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Payments.RecordPayment(context.Background(), tt.np)
			assert.True(t, tt.wantErr(err), "RecordPayment() error = %v", err)
		})
	}

	assertBalance(t, env, std.ID, "0")
	for _, action := range env.Trail.Actions() {
		assert.NotContains(t, action, "Recorded")
	}
}

func TestService_RecordContribution(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM030", "Tumaini", 0)

	tests := []struct {
		name      string
		commodity string
		qty       string
		wantCash  string
		wantRate  string
	}{
		{name: "default maize rate", commodity: "maize", qty: "10", wantCash: "300.00", wantRate: "30"},
		{name: "commodity is case-insensitive", commodity: " Beans ", qty: "2.5", wantCash: "62.50", wantRate: "25"},
		{name: "rounded to cents", commodity: "millet", qty: "0.333", wantCash: "13.32", wantRate: "40"},
		{name: "unrated commodity", commodity: "sorghum", qty: "4", wantCash: "0", wantRate: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcpt, err := contribute(t, env, std.ID, tt.commodity, tt.qty)
			require.NoError(t, err)

			p, err := env.Payments.PaymentByReceipt(context.Background(), rcpt.ReceiptNumber)
			require.NoError(t, err)
			require.NotNil(t, p.Contribution)
			assert.True(t, p.IsInKind())
			assert.Equal(t, rcpt.PaymentID, p.ID)
			testutil.AssertMoney(t, tt.wantCash, p.Amount, "amount")
			testutil.AssertMoney(t, tt.wantCash, p.Contribution.CashEquivalent, "cash equivalent")
			testutil.AssertMoney(t, tt.wantRate, p.Contribution.RateApplied, "rate")
			testutil.AssertMoney(t, tt.qty, p.Contribution.Quantity, "quantity")
		})
	}
	assert.Equal(t, 1, env.Logger.Count("WARN"), "zero cash equivalent warning")
	assertBalance(t, env, std.ID, "-375.82")
}

func TestService_RecordContribution_exactConversion(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM031", "Rehema", 0)

	for i := 0; i < 3; i++ {
		rcpt, err := contribute(t, env, std.ID, "maize", "10")
		require.NoError(t, err)
		p, err := env.Payments.PaymentByReceipt(context.Background(), rcpt.ReceiptNumber)
		require.NoError(t, err)
		assert.Equal(t, "300.00", core.FormatMoney(p.Amount))
	}
	assertBalance(t, env, std.ID, "-900")
}

func TestService_RecordContribution_rateFreeze(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM032", "Faraji", 0)
	setObligation(t, env, std.ID, "1000", "0")

	rcpt, err := contribute(t, env, std.ID, "maize", "10")
	require.NoError(t, err)
	assertBalance(t, env, std.ID, "700")

	_, err = env.Rates.SetRate(context.Background(), 1, "maize", decimal.NewFromInt(45))
	require.NoError(t, err)

	assertBalance(t, env, std.ID, "700")
	p, err := env.Payments.PaymentByReceipt(context.Background(), rcpt.ReceiptNumber)
	require.NoError(t, err)
	testutil.AssertMoney(t, "30", p.Contribution.RateApplied)
	testutil.AssertMoney(t, "300", p.Amount)

	_, err = contribute(t, env, std.ID, "maize", "10")
	require.NoError(t, err)
	assertBalance(t, env, std.ID, "250")
}

func TestService_RecordContribution_validation(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM033", "Baraka", 0)

	tests := []struct {
		name string
		nc   payment.NewContribution
	}{
		{name: "zero quantity", nc: payment.NewContribution{StudentID: std.ID, Commodity: "maize", Quantity: decimal.Zero, RecorderID: clerkID}},
		{name: "negative quantity", nc: payment.NewContribution{StudentID: std.ID, Commodity: "maize", Quantity: decimal.NewFromInt(-1), RecorderID: clerkID}},
		{name: "cash instrument", nc: payment.NewContribution{StudentID: std.ID, Commodity: "cash", Quantity: decimal.NewFromInt(1), RecorderID: clerkID}},
		{name: "blank commodity", nc: payment.NewContribution{StudentID: std.ID, Commodity: "  ", Quantity: decimal.NewFromInt(1), RecorderID: clerkID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Payments.RecordContribution(context.Background(), tt.nc)
			assert.True(t, core.IsValidationError(err), "RecordContribution() error = %v", err)
		})
	}
	assertBalance(t, env, std.ID, "0")
}

type failingContributions struct {
	payment.Repository
}

var errInjected = errors.New("injected failure")

func (failingContributions) CreateContribution(context.Context, payment.Contribution, ...core.DBExecutor) (payment.Contribution, error) {
	return payment.Contribution{}, errInjected
}

func TestService_RecordContribution_atomicity(t *testing.T) {
	env := dbtest.NewEnv(t, func(repo payment.Repository) payment.Repository {
		return failingContributions{repo}
	})
	std := env.CreateStudent(t, "ADM034", "Upendo", 0)
	setObligation(t, env, std.ID, "1000", "0")

	_, err := contribute(t, env, std.ID, "maize", "10")
	require.Error(t, err)
	assert.Equal(t, errInjected, errors.Cause(err))

	payments, err := env.Payments.PaymentsForStudent(context.Background(), std.ID, core.Page{})
	require.NoError(t, err)
	assert.Empty(t, payments, "orphan payment left behind")
	assertBalance(t, env, std.ID, "1000")

	var n int
	require.NoError(t, env.DB.Get(&n, "SELECT COUNT(*) FROM payments"))
	assert.Zero(t, n)

	for _, action := range env.Trail.Actions() {
		assert.NotContains(t, action, "Recorded", "rolled back payment was audited")
	}
}

type brokenRates struct{}

var errRateRead = errors.New("disk I/O error")

func (brokenRates) RateFor(context.Context, string, ...core.DBExecutor) (decimal.Decimal, error) {
	return decimal.Zero, errRateRead
}

func TestService_RecordContribution_rateReadError(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM035", "Tumaini", 0)
	setObligation(t, env, std.ID, "1000", "0")

	svc := payment.NewService(payment.Options{
		Repo:      env.PaymentRepo,
		Students:  env.Students,
		Fees:      env.Fees,
		Rates:     brokenRates{},
		Tx:        env.Tx,
		Trail:     env.Trail,
		Logger:    env.Logger,
		Validator: env.Validator,
	})
	_, err := svc.RecordContribution(context.Background(), payment.NewContribution{
		StudentID:  std.ID,
		Commodity:  "millet",
		Quantity:   decimal.NewFromInt(10),
		RecorderID: clerkID,
	})
	require.Error(t, err)
	assert.Equal(t, errRateRead, errors.Cause(err))

	var n int
	require.NoError(t, env.DB.Get(&n, "SELECT COUNT(*) FROM payments"))
	assert.Zero(t, n, "contribution recorded at a fallback rate")
	assertBalance(t, env, std.ID, "1000")
}

func TestService_receiptNumbers(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM040", "Hodari", 0)

	numbers := []string{"AAAA0001", "AAAA0001", "AAAA0001", "BBBB0002"}
	var mu sync.Mutex
	restore := payment.SetReceiptNumberFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[0]
		if len(numbers) > 1 {
			numbers = numbers[1:]
		}
		return n
	})
	defer restore()

	r1, err := pay(t, env, std.ID, "10", payment.InstrumentCash, "")
	require.NoError(t, err)
	assert.Equal(t, "AAAA0001", r1.ReceiptNumber)

	r2, err := pay(t, env, std.ID, "10", payment.InstrumentCash, "")
	require.NoError(t, err)
	assert.Equal(t, "BBBB0002", r2.ReceiptNumber, "collision should draw a new number")

	// always colliding
	r3, err := pay(t, env, std.ID, "10", payment.InstrumentCash, "")
	assert.Error(t, err)
	assert.Empty(t, r3.ReceiptNumber)
	assertBalance(t, env, std.ID, "-20")
}

func TestService_PaymentByReceipt(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM050", "Sifa", 0)
	rcpt, err := pay(t, env, std.ID, "75.5", payment.InstrumentCheque, "CHQ-1")
	require.NoError(t, err)
	assert.Len(t, rcpt.ReceiptNumber, 8)

	p, err := env.Payments.PaymentByReceipt(context.Background(), " "+strings.ToLower(rcpt.ReceiptNumber)+" ")
	require.NoError(t, err)
	assert.Equal(t, std.ID, p.StudentID)
	assert.Equal(t, "CHQ-1", p.ReferenceCode)
	assert.Equal(t, int64(clerkID), p.RecorderID)
	assert.Nil(t, p.Contribution)
	testutil.AssertMoney(t, "75.50", p.Amount)

	_, err = env.Payments.PaymentByReceipt(context.Background(), "NOPE0000")
	assert.Equal(t, payment.ErrReceiptNotFound, errors.Cause(err))
	_, err = env.Payments.PaymentByReceipt(context.Background(), "")
	assert.Equal(t, payment.ErrReceiptNotFound, errors.Cause(err))
}

func TestService_PaymentsForStudent(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM060", "Kito", 0)
	other := env.CreateStudent(t, "ADM061", "Moyo", 0)

	day := func(d int) time.Time { return time.Date(2024, time.March, d, 15, 4, 5, 0, time.UTC) }
	for _, d := range []int{3, 1, 2} {
		_, err := env.Payments.RecordPayment(context.Background(), payment.NewPayment{
			StudentID:  std.ID,
			Amount:     decimal.NewFromInt(int64(d)),
			Instrument: payment.InstrumentCash,
			PaidOn:     day(d),
			RecorderID: clerkID,
		})
		require.NoError(t, err)
	}
	_, err := pay(t, env, other.ID, "99", payment.InstrumentCash, "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		page     core.Page
		wantDays []int
	}{
		{name: "default page", wantDays: []int{3, 2, 1}},
		{name: "limit", page: core.Page{Limit: 2}, wantDays: []int{3, 2}},
		{name: "offset", page: core.Page{Limit: 2, Offset: 2}, wantDays: []int{1}},
		{name: "past the end", page: core.Page{Limit: 2, Offset: 5}, wantDays: []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments, err := env.Payments.PaymentsForStudent(context.Background(), std.ID, tt.page)
			require.NoError(t, err)
			days := make([]int, 0, len(payments))
			for _, p := range payments {
				assert.Equal(t, std.ID, p.StudentID)
				days = append(days, p.PaidOn.Day())
			}
			assert.Equal(t, tt.wantDays, days)
		})
	}
}

func TestService_auditTrail(t *testing.T) {
	env := dbtest.NewEnv(t)
	std := env.CreateStudent(t, "ADM070", "Nuru", 0)

	rcpt, err := pay(t, env, std.ID, "120", payment.InstrumentMobileMoney, "MP9")
	require.NoError(t, err)
	_, err = pay(t, env, std.ID, "120", payment.InstrumentMobileMoney, "MP9")
	require.Error(t, err)

	var recorded []testutil.TrailEntry
	for _, e := range env.Trail.Entries {
		if strings.HasPrefix(e.Action, "Recorded") {
			recorded = append(recorded, e)
		}
	}
	require.Len(t, recorded, 1)
	assert.Equal(t, int64(clerkID), recorded[0].ActorID)
	assert.Equal(t,
		fmt.Sprintf("Recorded payment of 120.00 via mobile-money for student #%d, receipt %s (mobile-money code MP9)", std.ID, rcpt.ReceiptNumber),
		recorded[0].Action,
	)
}
