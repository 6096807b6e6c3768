package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
)

type obligationRow struct {
	StudentID   int64           `db:"student_id"`
	TotalFees   decimal.Decimal `db:"total_fees"`
	BusFee      decimal.Decimal `db:"bus_fee"`
	BoardingFee decimal.Decimal `db:"boarding_fee"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

type feeRepository struct {
	base
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(exec core.DBExecutor) *feeRepository {
	return &feeRepository{base{exec: exec}}
}

func (repo feeRepository) UpsertObligation(ctx context.Context, ob fee.Obligation, exec ...core.DBExecutor) (fee.Obligation, error) {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		`INSERT INTO fee_obligations (student_id, total_fees, bus_fee, boarding_fee, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (student_id) DO UPDATE SET
			total_fees = excluded.total_fees,
			bus_fee = excluded.bus_fee,
			boarding_fee = excluded.boarding_fee,
			updated_at = excluded.updated_at`),
		ob.StudentID, ob.TotalFees, ob.BusFee, ob.BoardingFee, ob.UpdatedAt.UTC(),
	)
	if err != nil {
		return fee.Obligation{}, errors.Wrap(err, "upserting obligation")
	}
	return repo.GetObligation(ctx, ob.StudentID, exe)
}

func (repo feeRepository) GetObligation(ctx context.Context, studentID int64, exec ...core.DBExecutor) (fee.Obligation, error) {
	var row obligationRow
	err := get(ctx, repo.getExec(exec), fee.ErrNotFound, &row,
		"SELECT student_id, total_fees, bus_fee, boarding_fee, updated_at FROM fee_obligations WHERE student_id = ?", studentID)
	if err != nil {
		return fee.Obligation{}, errors.Wrap(err, "getting obligation")
	}
	return fee.Obligation{
		StudentID:   row.StudentID,
		TotalFees:   row.TotalFees,
		BusFee:      row.BusFee,
		BoardingFee: row.BoardingFee,
		UpdatedAt:   row.UpdatedAt.UTC(),
	}, nil
}

func (repo feeRepository) SetBoardingFee(
	ctx context.Context,
	studentIDs []int64,
	amount decimal.Decimal,
	updatedAt time.Time,
	exec ...core.DBExecutor,
) error {
	exe := repo.getExec(exec)
	q := exe.Rebind(
		`INSERT INTO fee_obligations (student_id, total_fees, bus_fee, boarding_fee, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (student_id) DO UPDATE SET boarding_fee = excluded.boarding_fee, updated_at = excluded.updated_at`)
	for _, id := range studentIDs {
		if _, err := exe.ExecContext(ctx, q, id, decimal.Zero, decimal.Zero, amount, updatedAt.UTC()); err != nil {
			return errors.Wrapf(err, "setting boarding fee of student #%d", id)
		}
	}
	return nil
}
