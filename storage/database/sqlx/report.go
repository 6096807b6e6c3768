package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/report"
)

type (
	studentLedgerRow struct {
		StudentID       int64               `db:"id"`
		AdmissionNumber string              `db:"admission_number"`
		Name            string              `db:"name"`
		ClassName       null.String         `db:"class_name"`
		TotalFees       decimal.NullDecimal `db:"total_fees"`
		BusFee          decimal.NullDecimal `db:"bus_fee"`
		BoardingFee     decimal.NullDecimal `db:"boarding_fee"`
	}

	studentAmountRow struct {
		StudentID int64           `db:"student_id"`
		Amount    decimal.Decimal `db:"amount"`
	}

	ledgerAmountRow struct {
		Instrument string          `db:"instrument"`
		Amount     decimal.Decimal `db:"amount"`
	}
)

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

type reportRepository struct {
	base
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(exec core.DBExecutor) *reportRepository {
	return &reportRepository{base{exec: exec}}
}

func (repo reportRepository) StudentLedgers(ctx context.Context, classID *int64, exec ...core.DBExecutor) ([]report.StudentLedger, error) {
	exe := repo.getExec(exec)

	var w where
	if classID != nil {
		w.add("s.class_id = ?", *classID)
	}

	var rows []studentLedgerRow
	err := selectAll(ctx, exe, &rows,
		`SELECT s.id, s.admission_number, s.name, c.name AS class_name, f.total_fees, f.bus_fee, f.boarding_fee
		FROM students s
		LEFT JOIN classes c ON c.id = s.class_id
		LEFT JOIN fee_obligations f ON f.student_id = s.id`+w.String()+`
		ORDER BY COALESCE(c.name, ''), s.name, s.id`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying student ledgers")
	}

	var amounts []studentAmountRow
	err = selectAll(ctx, exe, &amounts,
		`SELECT p.student_id, p.amount FROM payments p JOIN students s ON s.id = p.student_id`+w.String(), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying payment amounts")
	}
	paid := make(map[int64]decimal.Decimal, len(rows))
	for _, a := range amounts {
		paid[a.StudentID] = paid[a.StudentID].Add(a.Amount)
	}

	ledgers := make([]report.StudentLedger, 0, len(rows))
	for _, row := range rows {
		p, ok := paid[row.StudentID]
		if !ok {
			p = decimal.Zero
		}
		ledgers = append(ledgers, report.StudentLedger{
			StudentID:       row.StudentID,
			AdmissionNumber: row.AdmissionNumber,
			Name:            row.Name,
			ClassName:       row.ClassName.String,
			TotalFees:       orZero(row.TotalFees),
			BusFee:          orZero(row.BusFee),
			BoardingFee:     orZero(row.BoardingFee),
			Paid:            p,
		})
	}
	return ledgers, nil
}

func (repo reportRepository) PaymentAmounts(
	ctx context.Context,
	from, to time.Time,
	classID *int64,
	exec ...core.DBExecutor,
) ([]report.LedgerAmount, error) {
	var w where
	if !from.IsZero() {
		w.add("p.paid_on >= ?", from.UTC())
	}
	if !to.IsZero() {
		w.add("p.paid_on <= ?", to.UTC())
	}
	if classID != nil {
		w.add("s.class_id = ?", *classID)
	}

	var rows []ledgerAmountRow
	err := selectAll(ctx, repo.getExec(exec), &rows,
		`SELECT p.instrument, p.amount FROM payments p JOIN students s ON s.id = p.student_id`+w.String(), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying payment amounts")
	}
	amounts := make([]report.LedgerAmount, 0, len(rows))
	for _, row := range rows {
		amounts = append(amounts, report.LedgerAmount{Instrument: row.Instrument, Amount: row.Amount})
	}
	return amounts, nil
}
