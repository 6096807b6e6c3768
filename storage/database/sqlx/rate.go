package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/rate"
)

type rateRow struct {
	Commodity   string          `db:"commodity"`
	RatePerUnit decimal.Decimal `db:"rate_per_unit"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (row rateRow) unboil() rate.CommodityRate {
	return rate.CommodityRate{Commodity: row.Commodity, RatePerUnit: row.RatePerUnit, UpdatedAt: row.UpdatedAt.UTC()}
}

type rateRepository struct {
	base
}

var _ rate.Repository = (*rateRepository)(nil) // interface compliance check

func NewRateRepository(exec core.DBExecutor) *rateRepository {
	return &rateRepository{base{exec: exec}}
}

func (repo rateRepository) UpsertRate(ctx context.Context, r rate.CommodityRate, exec ...core.DBExecutor) (rate.CommodityRate, error) {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		`INSERT INTO commodity_rates (commodity, rate_per_unit, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (commodity) DO UPDATE SET rate_per_unit = excluded.rate_per_unit, updated_at = excluded.updated_at`),
		r.Commodity, r.RatePerUnit, r.UpdatedAt.UTC(),
	)
	if err != nil {
		return rate.CommodityRate{}, errors.Wrap(err, "upserting rate")
	}
	return repo.GetRate(ctx, r.Commodity, exe)
}

func (repo rateRepository) GetRate(ctx context.Context, commodity string, exec ...core.DBExecutor) (rate.CommodityRate, error) {
	var row rateRow
	err := get(ctx, repo.getExec(exec), rate.ErrNotFound, &row,
		"SELECT commodity, rate_per_unit, updated_at FROM commodity_rates WHERE commodity = ?", commodity)
	if err != nil {
		return rate.CommodityRate{}, errors.Wrap(err, "getting rate")
	}
	return row.unboil(), nil
}

func (repo rateRepository) QueryRates(ctx context.Context, exec ...core.DBExecutor) ([]rate.CommodityRate, error) {
	var rows []rateRow
	if err := selectAll(ctx, repo.getExec(exec), &rows,
		"SELECT commodity, rate_per_unit, updated_at FROM commodity_rates ORDER BY commodity"); err != nil {
		return nil, errors.Wrap(err, "querying rates")
	}
	rates := make([]rate.CommodityRate, 0, len(rows))
	for _, row := range rows {
		rates = append(rates, row.unboil())
	}
	return rates, nil
}
