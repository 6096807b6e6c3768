package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/testutil"
)

type memRepo struct {
	rates map[string]CommodityRate
	err   error
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo { return &memRepo{rates: make(map[string]CommodityRate)} }

func (repo *memRepo) UpsertRate(_ context.Context, r CommodityRate, _ ...core.DBExecutor) (CommodityRate, error) {
	if repo.err != nil {
		return CommodityRate{}, repo.err
	}
	repo.rates[r.Commodity] = r
	return r, nil
}

func (repo *memRepo) GetRate(_ context.Context, commodity string, _ ...core.DBExecutor) (CommodityRate, error) {
	if repo.err != nil {
		return CommodityRate{}, repo.err
	}
	r, ok := repo.rates[commodity]
	if !ok {
		return CommodityRate{}, ErrNotFound
	}
	return r, nil
}

func (repo *memRepo) QueryRates(_ context.Context, _ ...core.DBExecutor) ([]CommodityRate, error) {
	if repo.err != nil {
		return nil, repo.err
	}
	rates := make([]CommodityRate, 0, len(repo.rates))
	for _, r := range repo.rates {
		rates = append(rates, r)
	}
	return rates, nil
}

func TestService_SetRate(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	trail := new(testutil.Trail)
	svc := NewService(repo, trail, new(testutil.Logger), nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC) }

	tests := []struct {
		name      string
		commodity string
		rate      string
		wantErr   bool
	}{
		{name: "blank commodity", commodity: "  ", rate: "30", wantErr: true},
		{name: "cash instrument", commodity: "Cash", rate: "30", wantErr: true},
		{name: "negative rate", commodity: "maize", rate: "-1", wantErr: true},
		{name: "zero rate", commodity: "sorghum", rate: "0"},
		{name: "mixed case", commodity: " Maize ", rate: "30.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetRate(ctx, 1, tt.commodity, testutil.Dec(t, tt.rate))
			if tt.wantErr {
				assert.True(t, core.IsValidationError(err), "want validation error, got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}

	testutil.AssertMoney(t, "30.50", repo.rates["maize"].RatePerUnit)
	assert.Equal(t, []string{"Set sorghum rate to 0 per kg", "Set maize rate to 30.5 per kg"}, trail.Actions())
}

func TestService_GetRate(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	logger := new(testutil.Logger)
	svc := NewService(repo, new(testutil.Trail), logger, map[string]decimal.Decimal{
		"Maize":  decimal.NewFromInt(30),
		"millet": decimal.NewFromInt(40),
	})

	_, err := svc.SetRate(ctx, 1, "millet", decimal.NewFromInt(45))
	require.NoError(t, err)

	tests := []struct {
		name      string
		commodity string
		want      string
	}{
		{name: "configured default", commodity: "maize", want: "30"},
		{name: "stored overrides default", commodity: "MILLET", want: "45"},
		{name: "unknown commodity", commodity: "cassava", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertMoney(t, tt.want, svc.GetRate(ctx, tt.commodity))
		})
	}

	t.Run("storage error degrades to default", func(t *testing.T) {
		repo.err = errors.New("disk I/O error")
		defer func() { repo.err = nil }()

		testutil.AssertMoney(t, "30", svc.GetRate(ctx, "maize"))
		testutil.AssertMoney(t, "0", svc.GetRate(ctx, "cassava"))
		assert.Equal(t, 2, logger.Count("ERROR"))
	})
}

func TestService_RateFor(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, new(testutil.Trail), new(testutil.Logger), map[string]decimal.Decimal{
		"millet": decimal.NewFromInt(40),
	})
	_, err := svc.SetRate(ctx, 1, "millet", decimal.NewFromInt(45))
	require.NoError(t, err)

	r, err := svc.RateFor(ctx, " Millet ")
	require.NoError(t, err)
	testutil.AssertMoney(t, "45", r)

	r, err = svc.RateFor(ctx, "cassava")
	require.NoError(t, err)
	testutil.AssertMoney(t, "0", r, "missing rate")

	errDisk := errors.New("disk I/O error")
	repo.err = errDisk
	defer func() { repo.err = nil }()
	_, err = svc.RateFor(ctx, "millet")
	require.Error(t, err, "storage error fell back to the default")
	assert.True(t, errors.Is(err, errDisk))
}

func TestService_ListRates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), new(testutil.Trail), new(testutil.Logger), map[string]decimal.Decimal{
		"maize": decimal.NewFromInt(30),
		"beans": decimal.NewFromInt(25),
	})
	_, err := svc.SetRate(ctx, 1, "maize", decimal.NewFromInt(35))
	require.NoError(t, err)
	_, err = svc.SetRate(ctx, 1, "millet", decimal.NewFromInt(40))
	require.NoError(t, err)

	rates, err := svc.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 3)

	assert.Equal(t, "beans", rates[0].Commodity)
	assert.True(t, rates[0].IsDefault)
	assert.Equal(t, "maize", rates[1].Commodity)
	assert.False(t, rates[1].IsDefault)
	testutil.AssertMoney(t, "35", rates[1].RatePerUnit)
	assert.Equal(t, "millet", rates[2].Commodity)
}
