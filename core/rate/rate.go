// Package rate holds the cash-equivalent conversion rate of each in-kind commodity.
// Rates are versionless: the latest value wins and is read at the moment a contribution is recorded.
package rate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
)

var ErrNotFound = errors.New("rate not found")

type (
	CommodityRate struct {
		Commodity   string          `json:"commodity"`
		RatePerUnit decimal.Decimal `json:"rate_per_unit"` // currency per kg
		UpdatedAt   time.Time       `json:"updated_at,omitempty"`
		IsDefault   bool            `json:"is_default,omitempty"` // not stored; configured default
	}

	Repository interface {
		UpsertRate(ctx context.Context, r CommodityRate, exec ...core.DBExecutor) (CommodityRate, error)
		// GetRate returns ErrNotFound when no rate is stored for commodity.
		GetRate(ctx context.Context, commodity string, exec ...core.DBExecutor) (CommodityRate, error)
		QueryRates(ctx context.Context, exec ...core.DBExecutor) ([]CommodityRate, error)
	}

	// Reader is what the ledger needs from the rate table.
	Reader interface {
		RateFor(ctx context.Context, commodity string, exec ...core.DBExecutor) (decimal.Decimal, error)
	}

	Service struct {
		repo     Repository
		trail    audit.Logger
		logger   core.Logger
		defaults map[string]decimal.Decimal
		now      func() time.Time
	}
)

var _ Reader = (*Service)(nil)

// cash instruments cannot be used as commodity names
var reservedNames = map[string]bool{
	"cash":          true,
	"mobile-money":  true,
	"bank-transfer": true,
	"cheque":        true,
}

// NewService returns a rate table falling back to defaults (commodity -> rate) for commodities without a stored rate.
func NewService(repo Repository, trail audit.Logger, logger core.Logger, defaults map[string]decimal.Decimal) *Service {
	dflts := make(map[string]decimal.Decimal, len(defaults))
	for commodity, r := range defaults {
		dflts[CleanCommodity(commodity)] = r
	}
	return &Service{
		repo:     repo,
		trail:    trail,
		logger:   logger,
		defaults: dflts,
		now:      time.Now,
	}
}

// CleanCommodity normalizes a commodity name, e.g. " Maize " -> "maize".
func CleanCommodity(s string) string {
	return core.CleanString(s, true /* lower */)
}

// ValidateCommodity reports whether s (already cleaned) may name a commodity.
func ValidateCommodity(s string) error {
	if s == "" {
		return core.NewFieldError("commodity", "this field is required")
	}
	if reservedNames[s] {
		return core.NewFieldError("commodity", fmt.Sprintf("%q is a cash instrument, not a commodity", s))
	}
	if len(s) > 50 {
		return core.NewFieldError("commodity", "must be at most 50 characters")
	}
	return nil
}

// SetRate upserts the rate of a commodity. No history is kept.
func (svc *Service) SetRate(ctx context.Context, actorID int64, commodity string, ratePerUnit decimal.Decimal) (CommodityRate, error) {
	commodity = CleanCommodity(commodity)
	if err := ValidateCommodity(commodity); err != nil {
		return CommodityRate{}, err
	}
	if ratePerUnit.IsNegative() {
		return CommodityRate{}, core.NewFieldError("rate_per_unit", "must be greater than or equal to 0")
	}

	r, err := svc.repo.UpsertRate(ctx, CommodityRate{
		Commodity:   commodity,
		RatePerUnit: ratePerUnit,
		UpdatedAt:   svc.now().UTC(),
	})
	if err != nil {
		return CommodityRate{}, errors.Wrap(err, "upserting rate")
	}
	svc.trail.LogAction(ctx, actorID, fmt.Sprintf("Set %s rate to %s per kg", commodity, ratePerUnit.String()))
	return r, nil
}

func (svc *Service) defaultRate(commodity string) decimal.Decimal {
	if r, ok := svc.defaults[commodity]; ok {
		return r
	}
	return decimal.Zero
}

// RateFor returns the stored rate of a commodity, else its configured default, else 0.
// Only a missing rate falls back; storage errors are returned.
func (svc *Service) RateFor(ctx context.Context, commodity string, exec ...core.DBExecutor) (decimal.Decimal, error) {
	commodity = CleanCommodity(commodity)
	r, err := svc.repo.GetRate(ctx, commodity, exec...)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return svc.defaultRate(commodity), nil
		}
		return decimal.Zero, errors.Wrap(err, "getting rate")
	}
	return r.RatePerUnit, nil
}

// GetRate is RateFor for display: a storage error is logged and degrades to the default.
func (svc *Service) GetRate(ctx context.Context, commodity string, exec ...core.DBExecutor) decimal.Decimal {
	r, err := svc.RateFor(ctx, commodity, exec...)
	if err != nil {
		commodity = CleanCommodity(commodity)
		svc.logger.Error("reading commodity rate", err, map[string]interface{}{"commodity": commodity})
		return svc.defaultRate(commodity)
	}
	return r
}

// ListRates returns the stored rates merged with configured defaults, ordered by commodity.
func (svc *Service) ListRates(ctx context.Context) ([]CommodityRate, error) {
	stored, err := svc.repo.QueryRates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying rates")
	}

	seen := make(map[string]bool, len(stored))
	rates := make([]CommodityRate, 0, len(stored)+len(svc.defaults))
	for _, r := range stored {
		seen[r.Commodity] = true
		rates = append(rates, r)
	}
	for commodity, r := range svc.defaults {
		if !seen[commodity] {
			rates = append(rates, CommodityRate{Commodity: commodity, RatePerUnit: r, IsDefault: true})
		}
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Commodity < rates[j].Commodity })
	return rates, nil
}
