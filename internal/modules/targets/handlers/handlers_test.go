package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/targeteer/targeteer/internal/cache"
	"github.com/targeteer/targeteer/internal/domain"
	"github.com/targeteer/targeteer/internal/modules/targets"
)

const testSchema = `
CREATE TABLE target_portfolios (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    goal TEXT NOT NULL DEFAULT '1000',
    created_at INTEGER NOT NULL
);

CREATE TABLE target_portfolio_accounts (
    portfolio_id INTEGER NOT NULL REFERENCES target_portfolios(id) ON DELETE CASCADE,
    account_id TEXT NOT NULL,
    PRIMARY KEY (portfolio_id, account_id)
);

CREATE TABLE target_portfolio_lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id INTEGER NOT NULL REFERENCES target_portfolios(id) ON DELETE RESTRICT,
    sort_order INTEGER NOT NULL,
    uid TEXT NOT NULL,
    index_weight TEXT NOT NULL DEFAULT '0',
    coefficient TEXT NOT NULL DEFAULT '1',
    UNIQUE (portfolio_id, uid)
);
`

type stubInstruments struct{}

func (stubInstruments) GetByUID(uid string) (*domain.Instrument, error) {
	return &domain.Instrument{UID: uid, Ticker: "SBER", Name: "Sberbank", Lot: 10}, nil
}

type stubResolver struct{}

func (stubResolver) ResolveTicker(_ context.Context, ticker string) (*domain.Instrument, error) {
	return &domain.Instrument{UID: "uid-" + strings.ToLower(ticker), Ticker: ticker, Lot: 10}, nil
}

type stubPrices struct{}

func (stubPrices) Price(_ context.Context, _ domain.Instrument) (decimal.Decimal, error) {
	return decimal.RequireFromString("12.50"), nil
}

type stubLedger struct{}

func (stubLedger) SumQuantity(_ string, _ []string) (int64, error) { return 0, nil }

type stubIndex struct{}

func (stubIndex) IndexComposition(_ context.Context, _ string) ([]domain.IndexConstituent, error) {
	return []domain.IndexConstituent{{Ticker: "SBER", Weight: decimal.RequireFromString("14.37")}}, nil
}

func setupRouter(t *testing.T) (chi.Router, *targets.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	repo := targets.NewRepository(db, zerolog.Nop())
	mem := cache.NewMemory()
	tracker := targets.NewProgressTracker(stubLedger{}, mem, targets.ProgressConfig{
		BoughtQuantityTTL: 5 * time.Minute,
		BoughtValueTTL:    time.Minute,
	})
	service := targets.NewService(
		repo, stubInstruments{}, stubResolver{}, stubPrices{}, tracker, stubIndex{},
		mem,
		targets.ServiceConfig{TotalWeightTTL: 5 * time.Second, TotalValueTTL: 10 * time.Second},
		zerolog.Nop(),
	)
	planner := targets.NewPlanner(repo, stubInstruments{}, stubPrices{}, zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(repo, service, planner, zerolog.Nop()).RegisterRoutes(router)
	return router, repo
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetPortfolio(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, "POST", "/portfolios/", `{"name":"long term","goal":"2000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID   int64  `json:"id"`
		Goal string `json:"goal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "2000", created.Goal)

	rec = doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "long term", view["name"])
}

func TestCreatePortfolio_Validation(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, "POST", "/portfolios/", `{"goal":"2000"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/portfolios/", `{"name":"x","goal":"not a number"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPortfolio_NotFound(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, "GET", "/portfolios/42/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLineLifecycle(t *testing.T) {
	router, repo := setupRouter(t)
	p, err := repo.CreatePortfolio("lifecycle", decimal.NewFromInt(1000))
	require.NoError(t, err)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/portfolios/%d/lines", p.ID), `{"uid":"uid-sber"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = doJSON(t, router, "POST", fmt.Sprintf("/portfolios/%d/lines", p.ID), `{"uid":"uid-gazp"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	lines, err := repo.GetLines(p.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	rec = doJSON(t, router, "POST", fmt.Sprintf("/lines/%d/move/up", lines[1].ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved, err := repo.GetLines(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "uid-gazp", moved[0].InstrumentUID)

	rec = doJSON(t, router, "POST", fmt.Sprintf("/lines/%d/move/sideways", lines[0].ID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "PUT", fmt.Sprintf("/lines/%d/coefficient", lines[0].ID), `{"coefficient":"2.5"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "DELETE", fmt.Sprintf("/lines/%d/", lines[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "DELETE", fmt.Sprintf("/lines/%d/", lines[0].ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlanPurchase(t *testing.T) {
	router, repo := setupRouter(t)
	p, err := repo.CreatePortfolio("plan", decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = repo.AddLine(p.ID, "uid-sber")
	require.NoError(t, err)

	rec := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/plan?cash=500", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var plan []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	require.Len(t, plan, 1)
	assert.Equal(t, float64(4), plan[0]["lots"])
	assert.Equal(t, float64(40), plan[0]["quantity"])

	rec = doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/plan?cash=-5", p.ID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncIndex(t *testing.T) {
	router, repo := setupRouter(t)
	p, err := repo.CreatePortfolio("index", decimal.NewFromInt(1000))
	require.NoError(t, err)
	line, err := repo.AddLine(p.ID, "uid-sber")
	require.NoError(t, err)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/portfolios/%d/sync-index", p.ID), `{"index":"IMOEX"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := repo.GetLine(line.ID)
	require.NoError(t, err)
	assert.True(t, got.IndexWeight.Equal(decimal.RequireFromString("14.37")))
}

func TestTotalWeightEndpoint(t *testing.T) {
	router, repo := setupRouter(t)
	p, err := repo.CreatePortfolio("weights", decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = repo.AddLine(p.ID, "uid-sber")
	require.NoError(t, err)

	rec := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/total-weight", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1", resp["total_weight"])
}

func TestTotalValueEndpoint(t *testing.T) {
	router, repo := setupRouter(t)
	p, err := repo.CreatePortfolio("worth", decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = repo.AddLine(p.ID, "uid-sber")
	require.NoError(t, err)

	// Nothing is held, so the holdings are worth nothing even though the
	// line has a price and a target.
	rec := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/total-value", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0", resp["total_value"])

	rec = doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/total-value?use_cache=false", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
}
