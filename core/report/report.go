// Package report derives read-only summaries from the fee schedule and the payment ledger.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
)

type (
	// StudentLedger is a student with the raw sums needed for arrears.
	StudentLedger struct {
		StudentID       int64
		AdmissionNumber string
		Name            string
		ClassName       string
		TotalFees       decimal.Decimal
		BusFee          decimal.Decimal
		BoardingFee     decimal.Decimal
		Paid            decimal.Decimal
	}

	// LedgerAmount is one payment amount for collection summaries.
	LedgerAmount struct {
		Instrument string
		Amount     decimal.Decimal
	}

	Repository interface {
		// StudentLedgers returns every student (of a class if classID is set) ordered by class then name.
		// Students without an obligation row have zero fees.
		StudentLedgers(ctx context.Context, classID *int64, exec ...core.DBExecutor) ([]StudentLedger, error)
		// PaymentAmounts returns the payments with paid_on in [from, to] (of a class if classID is set).
		PaymentAmounts(ctx context.Context, from, to time.Time, classID *int64, exec ...core.DBExecutor) ([]LedgerAmount, error)
	}

	ArrearsLine struct {
		StudentID       int64           `json:"student_id"`
		AdmissionNumber string          `json:"admission_number"`
		Name            string          `json:"name"`
		ClassName       string          `json:"class_name,omitempty"`
		Expected        decimal.Decimal `json:"expected"`
		Paid            decimal.Decimal `json:"paid"`
		Arrears         decimal.Decimal `json:"arrears"` // negative: credit
	}

	Arrears struct {
		Lines         []ArrearsLine   `json:"lines"`
		TotalExpected decimal.Decimal `json:"total_expected"`
		TotalPaid     decimal.Decimal `json:"total_paid"`
		TotalArrears  decimal.Decimal `json:"total_arrears"`
	}

	InstrumentTotal struct {
		Instrument string          `json:"instrument"`
		Count      int             `json:"count"`
		Amount     decimal.Decimal `json:"amount"`
	}

	Collections struct {
		From         time.Time         `json:"from"`
		To           time.Time         `json:"to"`
		ByInstrument []InstrumentTotal `json:"by_instrument"`
		Count        int               `json:"count"`
		Total        decimal.Decimal   `json:"total"`
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Arrears lists expected, paid and outstanding amounts per student. With onlyOwing, students
// who owe nothing are left out (their amounts still count in the totals).
func (svc *Service) Arrears(ctx context.Context, classID *int64, onlyOwing bool) (Arrears, error) {
	ledgers, err := svc.repo.StudentLedgers(ctx, classID)
	if err != nil {
		return Arrears{}, errors.Wrap(err, "querying student ledgers")
	}

	res := Arrears{
		Lines:         make([]ArrearsLine, 0, len(ledgers)),
		TotalExpected: decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalArrears:  decimal.Zero,
	}
	for _, l := range ledgers {
		expected := core.SumMoney(l.TotalFees, l.BusFee, l.BoardingFee)
		line := ArrearsLine{
			StudentID:       l.StudentID,
			AdmissionNumber: l.AdmissionNumber,
			Name:            l.Name,
			ClassName:       l.ClassName,
			Expected:        expected,
			Paid:            l.Paid,
			Arrears:         expected.Sub(l.Paid),
		}
		res.TotalExpected = res.TotalExpected.Add(line.Expected)
		res.TotalPaid = res.TotalPaid.Add(line.Paid)
		res.TotalArrears = res.TotalArrears.Add(line.Arrears)

		if onlyOwing && !line.Arrears.IsPositive() {
			continue
		}
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

// Collections sums the payments received between two dates (inclusive), split by instrument.
func (svc *Service) Collections(ctx context.Context, from, to time.Time, classID *int64) (Collections, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Collections{}, core.NewFieldError("to", "must not be before from")
	}

	amounts, err := svc.repo.PaymentAmounts(ctx, from, to, classID)
	if err != nil {
		return Collections{}, errors.Wrap(err, "querying payment amounts")
	}

	byInst := make(map[string]*InstrumentTotal)
	res := Collections{From: from, To: to, Total: decimal.Zero}
	for _, a := range amounts {
		it, ok := byInst[a.Instrument]
		if !ok {
			it = &InstrumentTotal{Instrument: a.Instrument, Amount: decimal.Zero}
			byInst[a.Instrument] = it
		}
		it.Count++
		it.Amount = it.Amount.Add(a.Amount)
		res.Count++
		res.Total = res.Total.Add(a.Amount)
	}

	res.ByInstrument = make([]InstrumentTotal, 0, len(byInst))
	for _, it := range byInst {
		res.ByInstrument = append(res.ByInstrument, *it)
	}
	sort.Slice(res.ByInstrument, func(i, j int) bool {
		return res.ByInstrument[i].Instrument < res.ByInstrument[j].Instrument
	})
	return res, nil
}
