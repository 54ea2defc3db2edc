// Package domain holds the pure core types shared across modules.
// It has no infrastructure dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IDType enumerates the identifier namespaces an instrument can be looked
// up by. Brokers reassign FIGIs occasionally, so one instrument is reachable
// through several aliases that all point at the same UID.
type IDType string

const (
	IDTypeFIGI   IDType = "figi"
	IDTypeTicker IDType = "ticker"
	IDTypeISIN   IDType = "isin"
	IDTypeUID    IDType = "uid"
)

// Instrument is the metadata the engine needs about a tradable security.
type Instrument struct {
	UID               string
	FIGI              string
	Ticker            string
	ISIN              string
	Name              string
	Lot               int64 // minimum tradable quantity (lot size)
	Currency          string
	ClassCode         string
	InstrumentType    string
	MinPriceIncrement decimal.Decimal
	Updated           time.Time
}

// PriceSnapshot is the latest known price of an instrument together with
// the moment it was observed.
type PriceSnapshot struct {
	UID       string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Account identifies a brokerage account whose holdings can count toward a
// target portfolio.
type Account struct {
	ID     string
	Name   string
	Bank   string
	Type   string
	Status string
	Opened time.Time
	Closed *time.Time
}

// Position is one signed holding record: quantity of an instrument held on
// an account, split by blocked status the way the broker reports it.
type Position struct {
	AccountID     string
	InstrumentUID string
	Quantity      int64
	Blocked       bool
	Updated       time.Time
}
