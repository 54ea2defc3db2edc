// Package moex provides a client for the Moscow Exchange ISS API: last
// prices for board securities, instrument reference data, and index
// composition analytics.
package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/domain"
)

const defaultBaseURL = "https://iss.moex.com"

// Board securities on the main T+ equity board unless the instrument
// says otherwise.
const defaultBoard = "TQBR"

// Client for the MOEX ISS API. Implements domain.PriceFeed,
// domain.CatalogFeed and domain.IndexSource.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new ISS client. baseURL is overridable for tests;
// empty means the public endpoint.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "moex-iss").Logger(),
	}
}

// issTable is one block of an ISS response: parallel column names and
// data rows.
type issTable struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

func (t *issTable) columnIndex(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

func (t *issTable) stringAt(row []interface{}, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	s, _ := row[col].(string)
	return s
}

func (t *issTable) floatAt(row []interface{}, col int) (float64, bool) {
	if col < 0 || col >= len(row) {
		return 0, false
	}
	f, ok := row[col].(float64)
	return f, ok
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	query.Set("iss.meta", "off")
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build ISS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ISS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ISS returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse ISS response: %w", err)
	}
	return nil
}

// LastPrices fetches last trade prices for the instruments, grouped by
// board to keep the request count down. Instruments the exchange returns
// no price for are absent from the result, not an error.
func (c *Client) LastPrices(ctx context.Context, instruments []domain.Instrument) (map[string]decimal.Decimal, error) {
	byBoard := make(map[string][]domain.Instrument)
	for _, inst := range instruments {
		board := inst.ClassCode
		if board == "" {
			board = defaultBoard
		}
		byBoard[board] = append(byBoard[board], inst)
	}

	prices := make(map[string]decimal.Decimal)
	for board, group := range byBoard {
		if err := c.boardPrices(ctx, board, group, prices); err != nil {
			return nil, err
		}
	}
	return prices, nil
}

func (c *Client) boardPrices(ctx context.Context, board string, instruments []domain.Instrument, out map[string]decimal.Decimal) error {
	tickers := make([]string, 0, len(instruments))
	uidByTicker := make(map[string]string, len(instruments))
	for _, inst := range instruments {
		tickers = append(tickers, inst.Ticker)
		uidByTicker[inst.Ticker] = inst.UID
	}

	var result struct {
		Securities issTable `json:"securities"`
		Marketdata issTable `json:"marketdata"`
	}
	query := url.Values{
		"iss.only":   {"securities,marketdata"},
		"securities": {strings.Join(tickers, ",")},
	}
	path := fmt.Sprintf("/iss/engines/stock/markets/shares/boards/%s/securities.json", board)
	if err := c.get(ctx, path, query, &result); err != nil {
		return err
	}

	// Prefer the live last price; fall back to the previous close for
	// securities that have not traded yet today.
	prevClose := make(map[string]float64)
	secidCol := result.Securities.columnIndex("SECID")
	prevCol := result.Securities.columnIndex("PREVPRICE")
	for _, row := range result.Securities.Data {
		if prev, ok := result.Securities.floatAt(row, prevCol); ok {
			prevClose[result.Securities.stringAt(row, secidCol)] = prev
		}
	}

	mdSecidCol := result.Marketdata.columnIndex("SECID")
	lastCol := result.Marketdata.columnIndex("LAST")
	for _, row := range result.Marketdata.Data {
		secid := result.Marketdata.stringAt(row, mdSecidCol)
		uid, tracked := uidByTicker[secid]
		if !tracked {
			continue
		}

		last, ok := result.Marketdata.floatAt(row, lastCol)
		if !ok || last == 0 {
			last, ok = prevClose[secid], prevClose[secid] != 0
		}
		if !ok || last == 0 {
			c.log.Warn().Str("secid", secid).Str("board", board).Msg("No price in ISS response")
			continue
		}
		out[uid] = decimal.NewFromFloat(last)
	}
	return nil
}

// Security fetches reference data for one instrument from its primary
// board row. Lookups by ISIN or an unknown namespace go through the ISS
// search endpoint first to find the SECID.
func (c *Client) Security(ctx context.Context, idType domain.IDType, idValue string) (*domain.Instrument, error) {
	secid := idValue
	if idType != domain.IDTypeTicker {
		resolved, err := c.findSecid(ctx, idValue)
		if err != nil {
			return nil, err
		}
		secid = resolved
	}

	var result struct {
		Securities issTable `json:"securities"`
	}
	query := url.Values{"iss.only": {"securities"}}
	path := fmt.Sprintf("/iss/engines/stock/markets/shares/boards/%s/securities/%s.json", defaultBoard, secid)
	if err := c.get(ctx, path, query, &result); err != nil {
		return nil, err
	}
	if len(result.Securities.Data) == 0 {
		return nil, fmt.Errorf("security %s: %w", idValue, domain.ErrNotFound)
	}

	t := &result.Securities
	row := t.Data[0]
	lot, _ := t.floatAt(row, t.columnIndex("LOTSIZE"))
	minStep, _ := t.floatAt(row, t.columnIndex("MINSTEP"))

	inst := &domain.Instrument{
		UID:               strings.ToLower(t.stringAt(row, t.columnIndex("SECID"))),
		Ticker:            t.stringAt(row, t.columnIndex("SECID")),
		ISIN:              t.stringAt(row, t.columnIndex("ISIN")),
		Name:              t.stringAt(row, t.columnIndex("SECNAME")),
		Lot:               int64(lot),
		Currency:          t.stringAt(row, t.columnIndex("CURRENCYID")),
		ClassCode:         t.stringAt(row, t.columnIndex("BOARDID")),
		InstrumentType:    t.stringAt(row, t.columnIndex("SECTYPE")),
		MinPriceIncrement: decimal.NewFromFloat(minStep),
	}
	if inst.Lot == 0 {
		inst.Lot = 1
	}
	return inst, nil
}

// findSecid resolves an arbitrary identifier (ISIN, name fragment) to a
// SECID through the ISS search endpoint.
func (c *Client) findSecid(ctx context.Context, identifier string) (string, error) {
	var result struct {
		Securities issTable `json:"securities"`
	}
	query := url.Values{"q": {identifier}, "limit": {"5"}}
	if err := c.get(ctx, "/iss/securities.json", query, &result); err != nil {
		return "", err
	}

	t := &result.Securities
	secidCol := t.columnIndex("secid")
	isinCol := t.columnIndex("isin")
	for _, row := range t.Data {
		if strings.EqualFold(t.stringAt(row, isinCol), identifier) ||
			strings.EqualFold(t.stringAt(row, secidCol), identifier) {
			return t.stringAt(row, secidCol), nil
		}
	}
	return "", fmt.Errorf("security %s: %w", identifier, domain.ErrNotFound)
}

// IndexComposition fetches the constituents and weights of an index from
// the ISS analytics endpoint.
func (c *Client) IndexComposition(ctx context.Context, indexCode string) ([]domain.IndexConstituent, error) {
	var result struct {
		Analytics issTable `json:"analytics"`
	}
	query := url.Values{"limit": {"100"}}
	path := fmt.Sprintf("/iss/statistics/engines/stock/markets/index/analytics/%s.json", indexCode)
	if err := c.get(ctx, path, query, &result); err != nil {
		return nil, err
	}

	t := &result.Analytics
	tickerCol := t.columnIndex("ticker")
	weightCol := t.columnIndex("weight")
	if tickerCol < 0 || weightCol < 0 {
		return nil, fmt.Errorf("index %s: unexpected analytics response shape", indexCode)
	}

	constituents := make([]domain.IndexConstituent, 0, len(t.Data))
	for _, row := range t.Data {
		weight, ok := t.floatAt(row, weightCol)
		if !ok {
			continue
		}
		constituents = append(constituents, domain.IndexConstituent{
			Ticker: t.stringAt(row, tickerCol),
			Weight: decimal.NewFromFloat(weight),
		})
	}

	c.log.Debug().Str("index", indexCode).Int("constituents", len(constituents)).Msg("Fetched index composition")
	return constituents, nil
}
