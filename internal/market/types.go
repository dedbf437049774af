// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package market defines the domain types shared by the valuation engine:
// listings, owned-collection entries, sold transactions and crawl snapshots.
//
// Scrapers, spreadsheets and notification channels live outside this module;
// they exchange these plain records with the engine through feeds and the
// lookup client interfaces.
package market

import (
	"regexp"
	"strings"
	"time"
)

// InstrumentType classifies a listing or collection entry.
type InstrumentType string

// Instrument types. Free-text type strings map onto these four values.
const (
	TypeElectric InstrumentType = "electric"
	TypeAcoustic InstrumentType = "acoustic"
	TypeBass     InstrumentType = "bass"
	TypeUnknown  InstrumentType = "unknown"
)

// ParseInstrumentType maps a free-text type description onto an
// InstrumentType. Bass wins over electric/acoustic because listings are
// often titled "Electric Bass".
func ParseInstrumentType(s string) InstrumentType {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "bass"):
		return TypeBass
	case strings.Contains(l, "acoustic"):
		return TypeAcoustic
	case strings.Contains(l, "electric"):
		return TypeElectric
	default:
		return TypeUnknown
	}
}

// Listing is a marketplace listing as observed by a crawler. Identity is
// (Source, ID); the pair is unique per site. Listings form an append-only
// ledger: once created they are mutated in place for on-hold/sold state but
// never deleted.
type Listing struct {
	// Source is the marketplace the listing was observed on.
	Source string `json:"source"`

	// ID is the site-local listing identifier.
	ID string `json:"id"`

	Brand string         `json:"brand"`
	Model string         `json:"model"`
	Type  InstrumentType `json:"type"`

	// Year is free text ("1965", "c.1965", "1960s"); ParseYear extracts
	// the numeric year when possible.
	Year string `json:"year"`

	// Price is the asking price. Nil when the listing carries none.
	Price *float64 `json:"price,omitempty"`

	// MarketLow/MarketHigh are the price-guide range for this brand+model.
	// Nil until a market-range lookup succeeds.
	MarketLow  *float64 `json:"market_low,omitempty"`
	MarketHigh *float64 `json:"market_high,omitempty"`

	// Condition is the free-text condition description from the source.
	Condition string `json:"condition"`

	URL string `json:"url"`

	// OnHold is set directly by the source; it takes effect immediately,
	// with no grace period.
	OnHold bool `json:"on_hold"`

	// SoldDate is set once the sold detector confirms departure.
	SoldDate *time.Time `json:"sold_date,omitempty"`
}

// Active reports whether the listing should be scored: not on hold, not sold.
func (l *Listing) Active() bool {
	return !l.OnHold && l.SoldDate == nil
}

// ModelKey returns the lowercase "brand|model" key used by the price history
// store and the training-data collector.
func (l *Listing) ModelKey() string {
	return ModelKey(l.Brand, l.Model)
}

// HasMarketRange reports whether both market bounds are known.
func (l *Listing) HasMarketRange() bool {
	return l.MarketLow != nil && l.MarketHigh != nil
}

// MarketMid returns the midpoint of the market range, or 0 when the range is
// unknown.
func (l *Listing) MarketMid() float64 {
	if !l.HasMarketRange() {
		return 0
	}
	return (*l.MarketLow + *l.MarketHigh) / 2
}

// ModelKey builds the lowercase "brand|model" history key.
func ModelKey(brand, model string) string {
	return strings.ToLower(strings.TrimSpace(brand)) + "|" + strings.ToLower(strings.TrimSpace(model))
}

// SplitModelKey splits a "brand|model" key back into its parts.
// ok is false when the key has no separator.
func SplitModelKey(key string) (brand, model string, ok bool) {
	brand, model, ok = strings.Cut(key, "|")
	return brand, model, ok
}

// CollectionEntry is an instrument the buyer already owns. Read-only
// reference data for fit scoring; the valuation fields are filled in by the
// collection valuation pass.
type CollectionEntry struct {
	Brand string         `json:"brand"`
	Model string         `json:"model"`
	Type  InstrumentType `json:"type"`
	Year  string         `json:"year,omitempty"`

	CurrentValue *float64 `json:"current_value,omitempty"`
	Value1Y      *float64 `json:"value_1y,omitempty"`
	Value2Y      *float64 `json:"value_2y,omitempty"`
	LastUpdated  string   `json:"last_updated,omitempty"`
}

// SoldTransaction is a historical completed sale, used as training data.
type SoldTransaction struct {
	ID          string         `json:"id"`
	Brand       string         `json:"brand"`
	Model       string         `json:"model"`
	Year        string         `json:"year"`
	Type        InstrumentType `json:"type"`
	Condition   string         `json:"condition"`
	ListedPrice *float64       `json:"listed_price,omitempty"`
	SoldPrice   *float64       `json:"sold_price,omitempty"`
	MarketLow   *float64       `json:"market_low,omitempty"`
	MarketHigh  *float64       `json:"market_high,omitempty"`
	SoldDate    string         `json:"sold_date,omitempty"`
	Source      string         `json:"source,omitempty"`
}

// Desirability is the sold-to-listed price ratio capped at 1 and scaled to
// 0-100. It is the training target for the weight optimizer. ok is false
// when either price is missing or non-positive.
func (t *SoldTransaction) Desirability() (float64, bool) {
	if t.ListedPrice == nil || t.SoldPrice == nil || *t.ListedPrice <= 0 || *t.SoldPrice <= 0 {
		return 0, false
	}
	ratio := *t.SoldPrice / *t.ListedPrice
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 100, true
}

// CrawlSnapshot is the complete set of listing IDs visible in one crawl
// cycle of a source. The sold detector keys its grace-period state machine
// off successive snapshots.
type CrawlSnapshot struct {
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	IDs        []string  `json:"ids"`
}

// IDSet returns the snapshot's IDs as a set.
func (s *CrawlSnapshot) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		set[id] = struct{}{}
	}
	return set
}

// DecisionAction is an explicit operator verdict on a listing.
type DecisionAction string

// Operator decisions feed the buy/skip classifier as labeled examples.
const (
	DecisionBuy  DecisionAction = "buy"
	DecisionSkip DecisionAction = "skip"
)

// Decision records an operator buy/skip call on a listing.
type Decision struct {
	Listing Listing        `json:"listing"`
	Action  DecisionAction `json:"action"`
	At      time.Time      `json:"at,omitempty"`
}

var yearRe = regexp.MustCompile(`\d{4}`)

// ParseYear extracts the first 4-digit year from free text such as "1965",
// "c.1965" or "1960s". ok is false when no 4-digit run exists.
func ParseYear(raw string) (int, bool) {
	m := yearRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	// The regexp guarantees four digits; Atoi cannot fail.
	year := 0
	for _, d := range m {
		year = year*10 + int(d-'0')
	}
	return year, true
}
