// Package payment is the payment ledger and reconciliation engine: it records cash and in-kind payments
// and derives balances from the fee schedule and the ledger.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/rate"
)

const maxReceiptAttempts = 5

var (
	ErrNotFound = errors.New("payment not found")

	newReceiptNumber = defaultReceiptNumber // mockable
)

// defaultReceiptNumber returns 8 upper-case hex characters, e.g. "3F2A9C01".
func defaultReceiptNumber() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

type (
	Repository interface {
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		CreateContribution(ctx context.Context, c Contribution, exec ...core.DBExecutor) (Contribution, error)
		// GetPaymentByReference returns ErrNotFound when no payment carries (instrument, code).
		GetPaymentByReference(ctx context.Context, instrument, code string, exec ...core.DBExecutor) (Payment, error)
		// GetPaymentByReceipt returns ErrReceiptNotFound when no payment carries receiptNo.
		GetPaymentByReceipt(ctx context.Context, receiptNo string, exec ...core.DBExecutor) (Payment, error)
		ReceiptExists(ctx context.Context, receiptNo string, exec ...core.DBExecutor) (bool, error)
		// QueryPayments lists a student's payments, newest first (paid_on DESC, id DESC).
		QueryPayments(ctx context.Context, studentID int64, page core.Page, exec ...core.DBExecutor) ([]Payment, error)
		SumPayments(ctx context.Context, studentID int64, exec ...core.DBExecutor) (decimal.Decimal, error)
	}

	Students interface {
		Exists(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	Fees interface {
		GetObligation(ctx context.Context, studentID int64, exec ...core.DBExecutor) (fee.Obligation, error)
	}

	// Notifier is told about every committed payment. Failures are its own business.
	Notifier interface {
		PaymentRecorded(ctx context.Context, p Payment)
	}

	Options struct {
		Repo        Repository
		Students    Students
		Fees        Fees
		Rates       rate.Reader
		Tx          core.Transactor
		Trail       audit.Logger
		Logger      core.Logger
		Validator   *core.Validator
		Notifier    Notifier // optional
		PageSize    int
		MaxPageSize int
	}

	Service struct {
		repo        Repository
		students    Students
		fees        Fees
		rates       rate.Reader
		tx          core.Transactor
		trail       audit.Logger
		logger      core.Logger
		validator   *core.Validator
		notifier    Notifier
		pageSize    int
		maxPageSize int
		now         func() time.Time
	}
)

func NewService(opts Options) *Service {
	RegisterValidators(opts.Validator)
	svc := &Service{
		repo:        opts.Repo,
		students:    opts.Students,
		fees:        opts.Fees,
		rates:       opts.Rates,
		tx:          opts.Tx,
		trail:       opts.Trail,
		logger:      opts.Logger,
		validator:   opts.Validator,
		notifier:    opts.Notifier,
		pageSize:    opts.PageSize,
		maxPageSize: opts.MaxPageSize,
		now:         time.Now,
	}
	if svc.pageSize <= 0 {
		svc.pageSize = 50
	}
	if svc.maxPageSize <= 0 {
		svc.maxPageSize = 500
	}
	return svc
}

// SetNotifier registers n to be told about committed payments. Call it before serving.
func (svc *Service) SetNotifier(n Notifier) {
	svc.notifier = n
}

// insertPayment assigns a fresh receipt number to p and inserts it.
func (svc *Service) insertPayment(ctx context.Context, p Payment, exec core.DBExecutor) (Payment, error) {
	for attempt := 1; attempt <= maxReceiptAttempts; attempt++ {
		p.ReceiptNumber = newReceiptNumber()
		exists, err := svc.repo.ReceiptExists(ctx, p.ReceiptNumber, exec)
		if err != nil {
			return Payment{}, errors.Wrap(err, "checking receipt number")
		}
		if exists {
			continue
		}
		created, err := svc.repo.CreatePayment(ctx, p, exec)
		if err != nil {
			return Payment{}, errors.Wrap(err, "inserting payment")
		}
		return created, nil
	}
	return Payment{}, errReceiptExhausted
}

func (svc *Service) committed(ctx context.Context, p Payment, action string) {
	svc.trail.LogAction(ctx, p.RecorderID, action)
	if svc.notifier != nil {
		svc.notifier.PaymentRecorded(ctx, p)
	}
}

// RecordPayment records a cash-path payment. A reference code already recorded for the same instrument
// is rejected with a *DuplicatePaymentError and nothing is written.
func (svc *Service) RecordPayment(ctx context.Context, np NewPayment) (Receipt, error) {
	np.Clean()
	if err := svc.validator.Struct(np); err != nil {
		return Receipt{}, err
	}

	p := Payment{
		StudentID:     np.StudentID,
		Amount:        core.RoundMoney(np.Amount),
		Instrument:    np.Instrument,
		ReferenceCode: np.ReferenceCode,
		RecorderID:    np.RecorderID,
		RecordedAt:    svc.now().UTC(),
	}
	p.PaidOn = dateOnly(np.PaidOn, p.RecordedAt)
	if !p.Amount.IsPositive() {
		return Receipt{}, core.NewFieldError("amount", "must be at least 0.01")
	}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.students.Exists(ctx, p.StudentID, exec); err != nil {
			return err
		}
		if p.ReferenceCode != "" {
			existing, err := svc.repo.GetPaymentByReference(ctx, p.Instrument, p.ReferenceCode, exec)
			if err == nil {
				return &DuplicatePaymentError{
					Instrument:    p.Instrument,
					ReferenceCode: p.ReferenceCode,
					ReceiptNumber: existing.ReceiptNumber,
				}
			}
			if errors.Cause(err) != ErrNotFound {
				return errors.Wrap(err, "looking up reference code")
			}
		}
		created, err := svc.insertPayment(ctx, p, exec)
		if err != nil {
			return err
		}
		p = created
		return nil
	})
	if err != nil {
		var dupErr *DuplicatePaymentError
		if errors.Is(err, ErrDuplicatePayment) && !errors.As(err, &dupErr) {
			// lost the race against a concurrent recording; the unique index caught it
			return Receipt{}, &DuplicatePaymentError{Instrument: p.Instrument, ReferenceCode: p.ReferenceCode}
		}
		return Receipt{}, err
	}

	action := fmt.Sprintf("Recorded payment of %s via %s for student #%d, receipt %s",
		core.FormatMoney(p.Amount), p.Instrument, p.StudentID, p.ReceiptNumber)
	if p.ReferenceCode != "" {
		action += fmt.Sprintf(" (%s %s)", referenceLabel(p.Instrument), p.ReferenceCode)
	}
	svc.committed(ctx, p, action)
	return Receipt{PaymentID: p.ID, ReceiptNumber: p.ReceiptNumber}, nil
}

// RecordContribution records an in-kind payment. Its cash equivalent is quantity x the current rate
// of the commodity, rounded to cents, and never recomputed afterwards.
// A commodity without a rate is recorded with a zero cash equivalent.
func (svc *Service) RecordContribution(ctx context.Context, nc NewContribution) (Receipt, error) {
	nc.Clean()
	if err := svc.validator.Struct(nc); err != nil {
		return Receipt{}, err
	}

	p := Payment{
		StudentID:  nc.StudentID,
		Instrument: nc.Commodity,
		RecorderID: nc.RecorderID,
		RecordedAt: svc.now().UTC(),
	}
	p.PaidOn = dateOnly(nc.PaidOn, p.RecordedAt)
	c := Contribution{Commodity: nc.Commodity, Quantity: nc.Quantity}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.students.Exists(ctx, p.StudentID, exec); err != nil {
			return err
		}
		rateApplied, err := svc.rates.RateFor(ctx, nc.Commodity, exec)
		if err != nil {
			return err
		}
		c.RateApplied = rateApplied
		c.CashEquivalent = core.RoundMoney(c.Quantity.Mul(rateApplied))
		p.Amount = c.CashEquivalent

		createdPayment, err := svc.insertPayment(ctx, p, exec)
		if err != nil {
			return err
		}
		c.PaymentID = createdPayment.ID
		createdContribution, err := svc.repo.CreateContribution(ctx, c, exec)
		if err != nil {
			return errors.Wrap(err, "inserting contribution")
		}
		p, c = createdPayment, createdContribution
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	p.Contribution = &c

	if c.CashEquivalent.IsZero() {
		svc.logger.Warn("contribution recorded with zero cash equivalent", map[string]interface{}{
			"commodity":  c.Commodity,
			"quantity":   c.Quantity.String(),
			"student_id": p.StudentID,
			"receipt":    p.ReceiptNumber,
		})
	}
	svc.committed(ctx, p, fmt.Sprintf("Recorded %s kg of %s at %s/kg (%s) for student #%d, receipt %s",
		c.Quantity.String(), c.Commodity, c.RateApplied.String(), core.FormatMoney(c.CashEquivalent), p.StudentID, p.ReceiptNumber))
	return Receipt{PaymentID: p.ID, ReceiptNumber: p.ReceiptNumber}, nil
}

// PaymentsForStudent lists a student's payments, newest first.
func (svc *Service) PaymentsForStudent(ctx context.Context, studentID int64, page core.Page) ([]Payment, error) {
	payments, err := svc.repo.QueryPayments(ctx, studentID, page.Clamp(svc.pageSize, svc.maxPageSize))
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return payments, nil
}

// Statement computes obligation - payments. A student with no obligation and no payments has a zero balance.
func (svc *Service) Statement(ctx context.Context, studentID int64) (Statement, error) {
	ob, err := svc.fees.GetObligation(ctx, studentID)
	if err != nil {
		return Statement{}, err
	}
	paid, err := svc.repo.SumPayments(ctx, studentID)
	if err != nil {
		return Statement{}, errors.Wrap(err, "summing payments")
	}
	expected := ob.Total()
	return Statement{
		StudentID:  studentID,
		Obligation: ob,
		Expected:   expected,
		Paid:       paid,
		Balance:    expected.Sub(paid),
	}, nil
}

// Balance returns obligation - payments: positive is owed, negative is credit.
func (svc *Service) Balance(ctx context.Context, studentID int64) (decimal.Decimal, error) {
	st, err := svc.Statement(ctx, studentID)
	if err != nil {
		return decimal.Zero, err
	}
	return st.Balance, nil
}

// PaymentByReceipt looks up a payment by receipt number, case-insensitively.
func (svc *Service) PaymentByReceipt(ctx context.Context, receiptNo string) (Payment, error) {
	receiptNo = strings.ToUpper(core.CleanString(receiptNo))
	if receiptNo == "" {
		return Payment{}, ErrReceiptNotFound
	}
	return svc.repo.GetPaymentByReceipt(ctx, receiptNo)
}
