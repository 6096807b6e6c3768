// Package fee keeps the fee schedule: one obligation row per student.
package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/student"
)

var ErrNotFound = errors.New("obligation not found")

type (
	Obligation struct {
		StudentID   int64           `json:"student_id"`
		TotalFees   decimal.Decimal `json:"total_fees"` // base tuition
		BusFee      decimal.Decimal `json:"bus_fee"`
		BoardingFee decimal.Decimal `json:"boarding_fee"`
		UpdatedAt   time.Time       `json:"updated_at,omitempty"`
	}

	// NewObligation replaces a student's obligation.
	// A nil BusFee defaults to the fee of the student's bus location; a nil BoardingFee is 0.
	NewObligation struct {
		TotalFees   decimal.Decimal  `json:"total_fees" validate:"gte=0"`
		BusFee      *decimal.Decimal `json:"bus_fee" validate:"omitempty,gte=0"`
		BoardingFee *decimal.Decimal `json:"boarding_fee" validate:"omitempty,gte=0"`
	}

	Repository interface {
		UpsertObligation(ctx context.Context, ob Obligation, exec ...core.DBExecutor) (Obligation, error)
		// GetObligation returns ErrNotFound when the student has no obligation row.
		GetObligation(ctx context.Context, studentID int64, exec ...core.DBExecutor) (Obligation, error)
		// SetBoardingFee creates zero-filled rows for the students lacking one and overwrites only boarding_fee.
		SetBoardingFee(ctx context.Context, studentIDs []int64, amount decimal.Decimal, updatedAt time.Time, exec ...core.DBExecutor) error
	}

	// Students is what the fee schedule needs from the student registry.
	Students interface {
		GetByID(ctx context.Context, id int64, exec ...core.DBExecutor) (student.Student, error)
		StudentIDsInClass(ctx context.Context, classID int64, exec ...core.DBExecutor) ([]int64, error)
	}

	Service struct {
		repo      Repository
		students  Students
		tx        core.Transactor
		trail     audit.Logger
		validator *core.Validator
		busFees   map[string]decimal.Decimal // bus location -> fee
		now       func() time.Time
	}
)

// Total returns total_fees + bus_fee + boarding_fee.
func (ob Obligation) Total() decimal.Decimal {
	return core.SumMoney(ob.TotalFees, ob.BusFee, ob.BoardingFee)
}

func NewService(
	repo Repository,
	students Students,
	tx core.Transactor,
	trail audit.Logger,
	validator *core.Validator,
	busFees map[string]decimal.Decimal,
) *Service {
	fees := make(map[string]decimal.Decimal, len(busFees))
	for loc, amt := range busFees {
		fees[core.CleanString(loc, true /* lower */)] = amt
	}
	return &Service{
		repo:      repo,
		students:  students,
		tx:        tx,
		trail:     trail,
		validator: validator,
		busFees:   fees,
		now:       time.Now,
	}
}

// BusFee returns the configured fee of a bus location, 0 for none or an unknown location.
func (svc *Service) BusFee(location string) decimal.Decimal {
	if amt, ok := svc.busFees[core.CleanString(location, true)]; ok {
		return amt
	}
	return decimal.Zero
}

// SetObligation replaces the full obligation row of a student.
func (svc *Service) SetObligation(ctx context.Context, actorID, studentID int64, no NewObligation) (Obligation, error) {
	if err := svc.validator.Struct(no); err != nil {
		return Obligation{}, err
	}

	ob := Obligation{
		StudentID:   studentID,
		TotalFees:   core.RoundMoney(no.TotalFees),
		BoardingFee: decimal.Zero,
		UpdatedAt:   svc.now().UTC(),
	}
	if no.BoardingFee != nil {
		ob.BoardingFee = core.RoundMoney(*no.BoardingFee)
	}

	var saved Obligation
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		std, err := svc.students.GetByID(ctx, studentID, exec)
		if err != nil {
			return err
		}
		if no.BusFee != nil {
			ob.BusFee = core.RoundMoney(*no.BusFee)
		} else {
			ob.BusFee = svc.BusFee(std.BusLocation)
		}
		saved, err = svc.repo.UpsertObligation(ctx, ob, exec)
		return errors.Wrap(err, "upserting obligation")
	})
	if err != nil {
		return Obligation{}, err
	}
	ob = saved

	svc.trail.LogAction(ctx, actorID, fmt.Sprintf(
		"Set fees for student #%d: tuition %s, bus %s, boarding %s",
		studentID, core.FormatMoney(ob.TotalFees), core.FormatMoney(ob.BusFee), core.FormatMoney(ob.BoardingFee),
	))
	return ob, nil
}

// GetObligation never fails for a missing row: absence means no obligation yet, all components 0.
func (svc *Service) GetObligation(ctx context.Context, studentID int64, exec ...core.DBExecutor) (Obligation, error) {
	ob, err := svc.repo.GetObligation(ctx, studentID, exec...)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Obligation{StudentID: studentID, TotalFees: decimal.Zero, BusFee: decimal.Zero, BoardingFee: decimal.Zero}, nil
		}
		return Obligation{}, errors.Wrap(err, "getting obligation")
	}
	return ob, nil
}

// ApplyBoardingFeeToClass sets the boarding fee of every student in a class, creating zero-filled
// obligation rows where needed. Tuition and bus fees are left untouched. It returns the number of students affected.
func (svc *Service) ApplyBoardingFeeToClass(ctx context.Context, actorID, classID int64, amount decimal.Decimal) (int, error) {
	if amount.IsNegative() {
		return 0, core.NewFieldError("amount", "must be greater than or equal to 0")
	}
	amount = core.RoundMoney(amount)

	var count int
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		ids, err := svc.students.StudentIDsInClass(ctx, classID, exec)
		if err != nil {
			return err
		}
		count = len(ids)
		if count == 0 {
			return nil
		}
		return errors.Wrap(svc.repo.SetBoardingFee(ctx, ids, amount, svc.now().UTC(), exec), "setting boarding fees")
	})
	if err != nil {
		return 0, err
	}

	svc.trail.LogAction(ctx, actorID, fmt.Sprintf(
		"Applied boarding fee %s to %d students of class #%d", core.FormatMoney(amount), count, classID,
	))
	return count, nil
}
