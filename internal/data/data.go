// Package data holds the entities shared across the store, library,
// broker, and automation packages. Entities are read-only snapshots for
// the duration of one automation run.
package data

import (
	"fmt"
	"strings"
	"time"
)

type Format string

const (
	Paper Format = "paper"
	Live  Format = "live"
)

func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(value) {
	case string(Paper):
		return Paper, nil
	case string(Live):
		return Live, nil
	default:
		return "", fmt.Errorf("invalid format: %s", value)
	}
}

type Frequency string

const (
	Daily    Frequency = "daily"
	Intraday Frequency = "intraday"
)

type Asset struct {
	ID           string
	Symbol       string
	Class        string
	Exchange     string
	Status       string
	Tradeable    bool
	Marginable   bool
	Shortable    bool
	EasyToBorrow bool
}

// Strategy names three predicate sources. Each compiles to a tri-state
// result (true, false, or unknown) for a given symbol and day.
type Strategy struct {
	Name     string
	Entry    string
	ExitGain string
	ExitLoss string
}

// Instruction is a per-symbol trading rule. Quantity is the share count
// requested by policy; the actually held position quantity may differ.
type Instruction struct {
	Active      bool
	Description string
	Format      Format
	Symbol      string
	Strategy    string
	Quantity    int
	Frequency   Frequency
}

// Position is a broker-reported holding. Quantity > 0 means a long
// holding; zero or negative means none (or short).
type Position struct {
	ID       string
	Symbol   string
	Quantity int
}

// Order is an open, unfilled buy order as reported by the broker.
type Order struct {
	Symbol   string
	Quantity int
	Format   Format
}

// Price is one daily OHLCV bar.
type Price struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Metrics is a daily bar joined with its indicator columns. Indicator
// pointers are nil while inside the warmup window.
type Metrics struct {
	Price
	SMA7  *float64
	SMA20 *float64
	SMA50 *float64
	EMA7  *float64
	EMA20 *float64
	RSI   *float64
}

// Value resolves a metric field by name for predicate evaluation. The
// second return is false when the field is unknown or not yet computed.
func (m Metrics) Value(name string) (float64, bool) {
	switch strings.ToLower(name) {
	case "open":
		return m.Open, true
	case "high":
		return m.High, true
	case "low":
		return m.Low, true
	case "close":
		return m.Close, true
	case "volume":
		return m.Volume, true
	case "sma7":
		return deref(m.SMA7)
	case "sma20":
		return deref(m.SMA20)
	case "sma50":
		return deref(m.SMA50)
	case "ema7":
		return deref(m.EMA7)
	case "ema20":
		return deref(m.EMA20)
	case "rsi":
		return deref(m.RSI)
	default:
		return 0, false
	}
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// ValidityKeyDaily is the validity-marker key for an asset's daily
// dataset.
func ValidityKeyDaily(assetID string) string {
	return "Daily:" + assetID
}

// ValidityKeyAssets marks the last refresh of the asset catalog.
const ValidityKeyAssets = "Assets"
