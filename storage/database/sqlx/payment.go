package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/storage/database"
)

const paymentColumns = `p.id, p.student_id, p.amount, p.instrument, p.reference_code, p.recorder_id,
	p.paid_on, p.recorded_at, p.receipt_no,
	c.commodity, c.quantity, c.rate_applied, c.cash_equivalent
	FROM payments p LEFT JOIN contributions c ON c.payment_id = p.id`

type paymentRow struct {
	ID            int64           `db:"id"`
	StudentID     int64           `db:"student_id"`
	Amount        decimal.Decimal `db:"amount"`
	Instrument    string          `db:"instrument"`
	ReferenceCode null.String     `db:"reference_code"`
	RecorderID    int64           `db:"recorder_id"`
	PaidOn        time.Time       `db:"paid_on"`
	RecordedAt    time.Time       `db:"recorded_at"`
	ReceiptNo     string          `db:"receipt_no"`

	// contributions (in-kind payments only)
	Commodity      null.String         `db:"commodity"`
	Quantity       decimal.NullDecimal `db:"quantity"`
	RateApplied    decimal.NullDecimal `db:"rate_applied"`
	CashEquivalent decimal.NullDecimal `db:"cash_equivalent"`
}

func (row paymentRow) unboil() payment.Payment {
	p := payment.Payment{
		ID:            row.ID,
		StudentID:     row.StudentID,
		Amount:        row.Amount,
		Instrument:    row.Instrument,
		ReferenceCode: row.ReferenceCode.String,
		RecorderID:    row.RecorderID,
		PaidOn:        row.PaidOn.UTC(),
		RecordedAt:    row.RecordedAt.UTC(),
		ReceiptNumber: row.ReceiptNo,
	}
	if row.Commodity.Valid {
		p.Contribution = &payment.Contribution{
			PaymentID:      row.ID,
			Commodity:      row.Commodity.String,
			Quantity:       row.Quantity.Decimal,
			RateApplied:    row.RateApplied.Decimal,
			CashEquivalent: row.CashEquivalent.Decimal,
		}
	}
	return p
}

type paymentRepository struct {
	base
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(exec core.DBExecutor) *paymentRepository {
	return &paymentRepository{base{exec: exec}}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	id, err := insertReturningID(ctx, repo.getExec(exec),
		`INSERT INTO payments (student_id, amount, instrument, reference_code, recorder_id, paid_on, recorded_at, receipt_no)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.StudentID, p.Amount, p.Instrument, null.NewString(p.ReferenceCode, p.ReferenceCode != ""),
		p.RecorderID, p.PaidOn.UTC(), p.RecordedAt.UTC(), p.ReceiptNumber,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "reference_code") {
			return payment.Payment{}, payment.ErrDuplicatePayment
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	p.ID = id
	return p, nil
}

func (repo paymentRepository) CreateContribution(ctx context.Context, c payment.Contribution, exec ...core.DBExecutor) (payment.Contribution, error) {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		`INSERT INTO contributions (payment_id, commodity, quantity, rate_applied, cash_equivalent) VALUES (?, ?, ?, ?, ?)`),
		c.PaymentID, c.Commodity, c.Quantity, c.RateApplied, c.CashEquivalent,
	)
	if err != nil {
		return payment.Contribution{}, errors.Wrap(err, "inserting contribution")
	}
	return c, nil
}

func (repo paymentRepository) GetPaymentByReference(ctx context.Context, instrument, code string, exec ...core.DBExecutor) (payment.Payment, error) {
	var row paymentRow
	err := get(ctx, repo.getExec(exec), payment.ErrNotFound, &row,
		"SELECT "+paymentColumns+" WHERE p.instrument = ? AND p.reference_code = ?", instrument, code)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "getting payment by reference code")
	}
	return row.unboil(), nil
}

func (repo paymentRepository) GetPaymentByReceipt(ctx context.Context, receiptNo string, exec ...core.DBExecutor) (payment.Payment, error) {
	var row paymentRow
	err := get(ctx, repo.getExec(exec), payment.ErrReceiptNotFound, &row,
		"SELECT "+paymentColumns+" WHERE p.receipt_no = ?", receiptNo)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "getting payment by receipt number")
	}
	return row.unboil(), nil
}

func (repo paymentRepository) ReceiptExists(ctx context.Context, receiptNo string, exec ...core.DBExecutor) (bool, error) {
	var n int
	if err := get(ctx, repo.getExec(exec), nil, &n, "SELECT COUNT(*) FROM payments WHERE receipt_no = ?", receiptNo); err != nil {
		return false, errors.Wrap(err, "checking receipt number")
	}
	return n > 0, nil
}

func (repo paymentRepository) QueryPayments(ctx context.Context, studentID int64, page core.Page, exec ...core.DBExecutor) ([]payment.Payment, error) {
	var rows []paymentRow
	err := selectAll(ctx, repo.getExec(exec), &rows,
		"SELECT "+paymentColumns+" WHERE p.student_id = ? ORDER BY p.paid_on DESC, p.id DESC LIMIT ? OFFSET ?",
		studentID, page.Limit, page.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.unboil())
	}
	return payments, nil
}

// SumPayments adds the amounts up in Go: sqlite would sum TEXT amounts as floats.
func (repo paymentRepository) SumPayments(ctx context.Context, studentID int64, exec ...core.DBExecutor) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := selectAll(ctx, repo.getExec(exec), &amounts, "SELECT amount FROM payments WHERE student_id = ?", studentID); err != nil {
		return decimal.Zero, errors.Wrap(err, "selecting payment amounts")
	}
	return core.SumMoney(amounts...), nil
}
