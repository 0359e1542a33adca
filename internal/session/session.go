// Package session classifies an instant into a trading-session label for a
// given instrument. Labels follow the upstream quote provider's Chinese
// naming: 盘前 (pre-market), 盘中 (regular), 盘后 (post-market), 夜盘
// (overnight) and 休市 (closed).
package session

import (
	"strings"
	"time"
)

// Session labels.
const (
	PreMarket  = "盘前"
	Regular    = "盘中"
	PostMarket = "盘后"
	Overnight  = "夜盘"
	Closed     = "休市"
)

// Market identifies the venue a symbol trades on.
type Market string

const (
	MarketUS Market = "US"
	MarketHK Market = "HK"
)

// Calculator resolves trading sessions from symbols and wall-clock instants.
// The zero value is not usable; construct with NewCalculator so the market
// time zones are loaded once.
type Calculator struct {
	newYork  *time.Location
	hongKong *time.Location
}

// NewCalculator loads the market time zones and returns a ready Calculator.
func NewCalculator() (*Calculator, error) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	hk, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		return nil, err
	}
	return &Calculator{newYork: ny, hongKong: hk}, nil
}

// MarketFor classifies a symbol by its venue suffix. Symbols without a
// recognised suffix are treated as US listings.
func MarketFor(symbol string) Market {
	s := strings.ToUpper(symbol)
	if strings.HasSuffix(s, ".HK") {
		return MarketHK
	}
	return MarketUS
}

// LocalTime converts a UTC instant to the symbol's market-local time.
func (c *Calculator) LocalTime(symbol string, t time.Time) time.Time {
	switch MarketFor(symbol) {
	case MarketHK:
		return t.In(c.hongKong)
	default:
		return t.In(c.newYork)
	}
}

// Session returns the trading-session label for symbol at instant t.
func (c *Calculator) Session(symbol string, t time.Time) string {
	switch MarketFor(symbol) {
	case MarketHK:
		return hkSession(t.In(c.hongKong))
	default:
		return usSession(t.In(c.newYork))
	}
}

// minuteOfDay collapses a local time to minutes since midnight, which keeps
// the range comparisons below free of time.Date construction.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// usSession classifies a New York local time. Session boundaries are fixed
// in ET, so daylight saving is handled entirely by the zone conversion.
func usSession(t time.Time) string {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Closed
	}
	m := minuteOfDay(t)
	switch {
	case m >= 4*60 && m < 9*60+30:
		return PreMarket
	case m >= 9*60+30 && m < 16*60:
		return Regular
	case m >= 16*60 && m < 20*60:
		return PostMarket
	default:
		// 20:00 through 04:00 next day is overnight trading on weekdays.
		return Overnight
	}
}

// hkSession classifies a Hong Kong local time. Lunch break counts as closed,
// and the 17:15-23:45 extended session as overnight.
func hkSession(t time.Time) string {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Closed
	}
	m := minuteOfDay(t)
	switch {
	case m >= 9*60+30 && m < 12*60:
		return Regular
	case m >= 13*60 && m < 16*60:
		return Regular
	case m >= 17*60+15 && m < 23*60+45:
		return Overnight
	default:
		return Closed
	}
}
