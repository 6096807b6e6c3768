package payment

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
)

// Cash instruments. Any other instrument is a commodity name (in-kind payment).
const (
	InstrumentCash         = "cash"
	InstrumentMobileMoney  = "mobile-money"
	InstrumentBankTransfer = "bank-transfer"
	InstrumentCheque       = "cheque"
)

var CashInstruments = []string{InstrumentCash, InstrumentMobileMoney, InstrumentBankTransfer, InstrumentCheque}

var (
	// errors
	ErrDuplicatePayment = errors.New("duplicate payment")
	ErrReceiptNotFound  = errors.New("receipt not found")
	errReceiptExhausted = errors.New("could not generate a unique receipt number")
)

func IsCashInstrument(instrument string) bool {
	for _, inst := range CashInstruments {
		if inst == instrument {
			return true
		}
	}
	return false
}

// referenceLabel names the namespace of a reference code for users.
func referenceLabel(instrument string) string {
	switch instrument {
	case InstrumentMobileMoney:
		return "mobile-money code"
	case InstrumentBankTransfer:
		return "bank reference"
	case InstrumentCheque:
		return "cheque number"
	default:
		return "reference code"
	}
}

// DuplicatePaymentError reports a reference code already recorded for the same instrument.
type DuplicatePaymentError struct {
	Instrument    string
	ReferenceCode string
	ReceiptNumber string // receipt of the existing payment, if known
}

func (e *DuplicatePaymentError) Error() string {
	msg := fmt.Sprintf("%s %q has already been recorded", referenceLabel(e.Instrument), e.ReferenceCode)
	if e.ReceiptNumber != "" {
		msg += " (receipt " + e.ReceiptNumber + ")"
	}
	return msg
}

func (e *DuplicatePaymentError) Is(target error) bool { return target == ErrDuplicatePayment }

type (
	Payment struct {
		ID            int64           `json:"id"`
		StudentID     int64           `json:"student_id"`
		Amount        decimal.Decimal `json:"amount"` // cash equivalent
		Instrument    string          `json:"instrument"`
		ReferenceCode string          `json:"reference_code,omitempty"`
		RecorderID    int64           `json:"recorder_id"`
		PaidOn        time.Time       `json:"paid_on"`     // date given by the recorder
		RecordedAt    time.Time       `json:"recorded_at"` // UTC
		ReceiptNumber string          `json:"receipt_number"`

		Contribution *Contribution `json:"contribution,omitempty"` // in-kind payments only
	}

	// Contribution is the in-kind detail of a commodity Payment. Its cash equivalent is frozen at insertion.
	Contribution struct {
		PaymentID      int64           `json:"payment_id"`
		Commodity      string          `json:"commodity"`
		Quantity       decimal.Decimal `json:"quantity"` // kg
		RateApplied    decimal.Decimal `json:"rate_applied"`
		CashEquivalent decimal.Decimal `json:"cash_equivalent"`
	}

	Receipt struct {
		PaymentID     int64  `json:"payment_id"`
		ReceiptNumber string `json:"receipt_number"`
	}

	NewPayment struct {
		StudentID     int64           `json:"-"`
		Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
		Instrument    string          `json:"instrument" validate:"required,instrument"`
		PaidOn        time.Time       `json:"paid_on"` // zero: today
		RecorderID    int64           `json:"-" validate:"gt=0"`
		ReferenceCode string          `json:"reference_code" validate:"max=100"`
	}

	NewContribution struct {
		StudentID  int64           `json:"-"`
		Commodity  string          `json:"commodity" validate:"required,commodity"`
		Quantity   decimal.Decimal `json:"quantity" validate:"gt=0"`
		RecorderID int64           `json:"-" validate:"gt=0"`
		PaidOn     time.Time       `json:"paid_on"` // zero: today
	}

	// Statement is a balance with its parts.
	Statement struct {
		StudentID  int64           `json:"student_id"`
		Obligation fee.Obligation  `json:"obligation"`
		Expected   decimal.Decimal `json:"expected"`
		Paid       decimal.Decimal `json:"paid"`
		Balance    decimal.Decimal `json:"balance"` // negative: credit
	}
)

func (np *NewPayment) Clean() {
	np.Instrument = core.CleanString(np.Instrument, true /* lower */)
	np.ReferenceCode = core.CleanString(np.ReferenceCode)
}

func (nc *NewContribution) Clean() {
	nc.Commodity = core.CleanString(nc.Commodity, true /* lower */)
}

// IsInKind reports whether the payment was made in produce.
func (p Payment) IsInKind() bool {
	return !IsCashInstrument(p.Instrument)
}

// dateOnly truncates t to its calendar date in UTC, defaulting to today.
func dateOnly(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		t = now
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
