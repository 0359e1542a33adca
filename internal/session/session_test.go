package session

import (
	"testing"
	"time"
)

func mustCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator()
	if err != nil {
		t.Fatalf("NewCalculator returned error: %v", err)
	}
	return c
}

func TestMarketFor(t *testing.T) {
	cases := []struct {
		symbol string
		want   Market
	}{
		{"AAPL.US", MarketUS},
		{"aapl.us", MarketUS},
		{"700.HK", MarketHK},
		{"9988.hk", MarketHK},
		{"TSLA", MarketUS}, // no suffix defaults to US
	}
	for _, c := range cases {
		if got := MarketFor(c.symbol); got != c.want {
			t.Errorf("MarketFor(%q) = %q, want %q", c.symbol, got, c.want)
		}
	}
}

func TestUSSessions(t *testing.T) {
	calc := mustCalculator(t)
	ny, _ := time.LoadLocation("America/New_York")

	cases := []struct {
		name string
		t    time.Time
		want string
	}{
		// Monday 2024-06-03, during daylight saving.
		{"pre-market", time.Date(2024, 6, 3, 5, 0, 0, 0, ny), PreMarket},
		{"pre-market boundary", time.Date(2024, 6, 3, 4, 0, 0, 0, ny), PreMarket},
		{"regular open", time.Date(2024, 6, 3, 9, 30, 0, 0, ny), Regular},
		{"regular midday", time.Date(2024, 6, 3, 12, 0, 0, 0, ny), Regular},
		{"post-market", time.Date(2024, 6, 3, 16, 0, 0, 0, ny), PostMarket},
		{"post-market late", time.Date(2024, 6, 3, 19, 59, 0, 0, ny), PostMarket},
		{"overnight evening", time.Date(2024, 6, 3, 20, 0, 0, 0, ny), Overnight},
		{"overnight small hours", time.Date(2024, 6, 3, 2, 0, 0, 0, ny), Overnight},
		// Saturday.
		{"weekend", time.Date(2024, 6, 1, 12, 0, 0, 0, ny), Closed},
		// Winter Monday, standard time; regular hours unchanged in ET.
		{"winter regular", time.Date(2024, 1, 8, 10, 0, 0, 0, ny), Regular},
	}
	for _, c := range cases {
		if got := calc.Session("AAPL.US", c.t.UTC()); got != c.want {
			t.Errorf("%s: Session = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestHKSessions(t *testing.T) {
	calc := mustCalculator(t)
	hk, _ := time.LoadLocation("Asia/Hong_Kong")

	cases := []struct {
		name string
		t    time.Time
		want string
	}{
		// Monday 2024-06-03.
		{"morning session", time.Date(2024, 6, 3, 10, 0, 0, 0, hk), Regular},
		{"lunch break", time.Date(2024, 6, 3, 12, 30, 0, 0, hk), Closed},
		{"afternoon session", time.Date(2024, 6, 3, 14, 0, 0, 0, hk), Regular},
		{"after close", time.Date(2024, 6, 3, 16, 30, 0, 0, hk), Closed},
		{"overnight", time.Date(2024, 6, 3, 18, 0, 0, 0, hk), Overnight},
		{"overnight end", time.Date(2024, 6, 3, 23, 44, 0, 0, hk), Overnight},
		{"late night closed", time.Date(2024, 6, 3, 23, 50, 0, 0, hk), Closed},
		{"early morning closed", time.Date(2024, 6, 3, 8, 0, 0, 0, hk), Closed},
		{"weekend", time.Date(2024, 6, 2, 10, 0, 0, 0, hk), Closed},
	}
	for _, c := range cases {
		if got := calc.Session("700.HK", c.t.UTC()); got != c.want {
			t.Errorf("%s: Session = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestLocalTime(t *testing.T) {
	calc := mustCalculator(t)
	utc := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)

	ny := calc.LocalTime("AAPL.US", utc)
	if ny.Hour() != 10 {
		t.Errorf("US local hour = %d, want 10", ny.Hour())
	}

	hk := calc.LocalTime("700.HK", utc)
	if hk.Hour() != 22 {
		t.Errorf("HK local hour = %d, want 22", hk.Hour())
	}
}
