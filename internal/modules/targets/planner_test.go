package targets

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/targeteer/targeteer/internal/domain"
)

type fakeInstruments struct {
	byUID map[string]*domain.Instrument
}

func (f *fakeInstruments) GetByUID(uid string) (*domain.Instrument, error) {
	inst, ok := f.byUID[uid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inst, nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
	calls  int
}

func (f *fakePrices) Price(_ context.Context, inst domain.Instrument) (decimal.Decimal, error) {
	f.calls++
	price, ok := f.prices[inst.UID]
	if !ok {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return price, nil
}

type fakeLedger struct {
	held map[string]int64
	err  error
}

func (f *fakeLedger) SumQuantity(uid string, _ []string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.held[uid], nil
}

func TestToBuyQuantity(t *testing.T) {
	tests := []struct {
		name    string
		goal    string
		percent string
		price   string
		lot     int64
		want    int64
	}{
		{"whole lots", "1000", "100", "12.50", 10, 80},
		{"partial lot above half rounds up", "1000", "100", "12.50", 100, 100},
		{"half lot rounds to even", "1000", "50", "100", 10, 0},
		{"zero price yields zero", "1000", "50", "0", 10, 0},
		{"single-share lot", "1000", "25", "83.7", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToBuyQuantity(dec(tt.goal), dec(tt.percent), dec(tt.price), tt.lot)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToBuyQuantity_BankersRounding(t *testing.T) {
	// 1.5 lots rounds to 2 and 2.5 lots also rounds to 2: half to even
	// keeps repeated plans from drifting upward.
	assert.Equal(t, int64(20), ToBuyQuantity(dec("150"), dec("100"), dec("10"), 10))
	assert.Equal(t, int64(20), ToBuyQuantity(dec("250"), dec("100"), dec("10"), 10))
}

func setupPlanner(t *testing.T, repo *Repository, instruments *fakeInstruments, prices *fakePrices) *Planner {
	t.Helper()
	return NewPlanner(repo, instruments, prices, zerolog.Nop())
}

func singleLinePortfolio(t *testing.T, repo *Repository) (int64, Line) {
	t.Helper()
	p, err := repo.CreatePortfolio("cash plan", decimal.NewFromInt(1000))
	require.NoError(t, err)
	line, err := repo.AddLine(p.ID, "uid-sber")
	require.NoError(t, err)
	return p.ID, *line
}

func TestPlanSimplePurchase_CapsAtAvailableCash(t *testing.T) {
	repo := setupTestRepo(t)
	portfolioID, _ := singleLinePortfolio(t, repo)

	instruments := &fakeInstruments{byUID: map[string]*domain.Instrument{
		"uid-sber": {UID: "uid-sber", Ticker: "SBER", Lot: 10},
	}}
	prices := &fakePrices{prices: map[string]decimal.Decimal{"uid-sber": dec("12.50")}}
	planner := setupPlanner(t, repo, instruments, prices)

	// 500 of cash affords 4 lots at a lot price of 125.
	plan, err := planner.PlanSimplePurchase(context.Background(), portfolioID, dec("500"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(4), plan[0].Lots)
	assert.Equal(t, int64(40), plan[0].Quantity)
	assert.True(t, plan[0].LotPrice.Equal(dec("125")))
	assert.True(t, plan[0].Value.Equal(dec("500")))

	plan, err = planner.PlanSimplePurchase(context.Background(), portfolioID, dec("499"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(3), plan[0].Lots)
}

func TestPlanSimplePurchase_LotPriceMustBeBelowCash(t *testing.T) {
	repo := setupTestRepo(t)
	portfolioID, _ := singleLinePortfolio(t, repo)

	instruments := &fakeInstruments{byUID: map[string]*domain.Instrument{
		"uid-sber": {UID: "uid-sber", Ticker: "SBER", Lot: 10},
	}}
	prices := &fakePrices{prices: map[string]decimal.Decimal{"uid-sber": dec("12.50")}}
	planner := setupPlanner(t, repo, instruments, prices)

	// Exactly one lot price of cash buys nothing: the bound is strict.
	plan, err := planner.PlanSimplePurchase(context.Background(), portfolioID, dec("125"))
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlanSimplePurchase_IgnoresTargetAndHoldings(t *testing.T) {
	repo := setupTestRepo(t)
	portfolioID, _ := singleLinePortfolio(t, repo)

	instruments := &fakeInstruments{byUID: map[string]*domain.Instrument{
		"uid-sber": {UID: "uid-sber", Ticker: "SBER", Lot: 10},
	}}
	prices := &fakePrices{prices: map[string]decimal.Decimal{"uid-sber": dec("12.50")}}
	planner := setupPlanner(t, repo, instruments, prices)

	// The quote is cash against lot price, nothing else: the 8-lot target
	// and whatever is already held never shrink it.
	plan, err := planner.PlanSimplePurchase(context.Background(), portfolioID, dec("10000"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(80), plan[0].Lots)
	assert.Equal(t, int64(800), plan[0].Quantity)
}

func TestPlanSimplePurchase_QuotesEachLineAgainstFullCash(t *testing.T) {
	repo := setupTestRepo(t)
	p, err := repo.CreatePortfolio("priorities", decimal.NewFromInt(1000))
	require.NoError(t, err)
	for _, uid := range []string{"uid-sber", "uid-gazp"} {
		_, err := repo.AddLine(p.ID, uid)
		require.NoError(t, err)
	}

	instruments := &fakeInstruments{byUID: map[string]*domain.Instrument{
		"uid-sber": {UID: "uid-sber", Ticker: "SBER", Lot: 10},
		"uid-gazp": {UID: "uid-gazp", Ticker: "GAZP", Lot: 10},
	}}
	prices := &fakePrices{prices: map[string]decimal.Decimal{
		"uid-sber": dec("12.50"),
		"uid-gazp": dec("15"),
	}}
	planner := setupPlanner(t, repo, instruments, prices)

	// Both lines are quoted against the full 700, in display order; the
	// earlier line's quote does not eat into the later one's.
	plan, err := planner.PlanSimplePurchase(context.Background(), p.ID, dec("700"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "SBER", plan[0].Ticker)
	assert.Equal(t, int64(5), plan[0].Lots)
	assert.Equal(t, "GAZP", plan[1].Ticker)
	assert.Equal(t, int64(4), plan[1].Lots)
}

func TestPlanSimplePurchase_SkipsUnpriceableAndZeroWeight(t *testing.T) {
	repo := setupTestRepo(t)
	p, err := repo.CreatePortfolio("gaps", decimal.NewFromInt(1000))
	require.NoError(t, err)
	for _, uid := range []string{"uid-dark", "uid-mute", "uid-sber"} {
		_, err := repo.AddLine(p.ID, uid)
		require.NoError(t, err)
	}
	lines, err := repo.GetLines(p.ID)
	require.NoError(t, err)
	require.NoError(t, repo.SetCoefficient(lines[1].ID, decimal.Zero))

	instruments := &fakeInstruments{byUID: map[string]*domain.Instrument{
		"uid-dark": {UID: "uid-dark", Ticker: "DARK", Lot: 1},
		"uid-mute": {UID: "uid-mute", Ticker: "MUTE", Lot: 1},
		"uid-sber": {UID: "uid-sber", Ticker: "SBER", Lot: 10},
	}}
	// No price for uid-dark at all.
	prices := &fakePrices{prices: map[string]decimal.Decimal{"uid-sber": dec("12.50")}}
	planner := setupPlanner(t, repo, instruments, prices)

	plan, err := planner.PlanSimplePurchase(context.Background(), p.ID, dec("400"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "SBER", plan[0].Ticker)
}

func TestPlanSimplePurchase_EmptyOrWeightlessPortfolio(t *testing.T) {
	repo := setupTestRepo(t)
	p, err := repo.CreatePortfolio("empty", decimal.NewFromInt(1000))
	require.NoError(t, err)

	planner := setupPlanner(t, repo, &fakeInstruments{}, &fakePrices{})

	plan, err := planner.PlanSimplePurchase(context.Background(), p.ID, dec("1000"))
	require.NoError(t, err)
	assert.Empty(t, plan)
}
