// Package models defines data structures for tickwatch
package models

import (
	"regexp"
	"strings"
	"time"
)

// Market identifies the exchange region a symbol trades in.
type Market string

const (
	MarketCN Market = "CN"
	MarketHK Market = "HK"
	MarketUS Market = "US"
)

// ValidMarket reports whether m is one of the supported markets.
func ValidMarket(m Market) bool {
	switch m {
	case MarketCN, MarketHK, MarketUS:
		return true
	}
	return false
}

// ParseMarket normalizes a raw market string, defaulting to CN when empty.
func ParseMarket(raw string) Market {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return MarketCN
	}
	return Market(s)
}

// Currency returns the display currency tag for the market.
func (m Market) Currency() string {
	switch m {
	case MarketHK:
		return "HKD"
	case MarketUS:
		return "USD"
	default:
		return "CNY"
	}
}

var (
	cnSuffixRe = regexp.MustCompile(`^(\d{6})\.(SH|SZ|BJ)$`)
	cnCodeRe   = regexp.MustCompile(`^\d{6}$`)
	hkCodeRe   = regexp.MustCompile(`^\d{1,5}(\.HK)?$`)
)

// NormalizeSymbol canonicalizes a raw symbol for the given market:
// CN six-digit codes gain a .SH/.SZ/.BJ suffix by code prefix, HK numeric
// codes are zero-padded to five digits with a .HK suffix, US tickers are
// uppercased as-is.
func NormalizeSymbol(market Market, raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	switch market {
	case MarketCN:
		if m := cnSuffixRe.FindStringSubmatch(s); m != nil {
			return m[1] + "." + m[2]
		}
		if cnCodeRe.MatchString(s) {
			switch {
			case strings.HasPrefix(s, "6"):
				return s + ".SH"
			case strings.HasPrefix(s, "0"), strings.HasPrefix(s, "3"):
				return s + ".SZ"
			case strings.HasPrefix(s, "8"), strings.HasPrefix(s, "4"):
				return s + ".BJ"
			}
			return s + ".SZ"
		}
		return s
	case MarketHK:
		if hkCodeRe.MatchString(s) {
			code := strings.TrimSuffix(s, ".HK")
			for len(code) < 5 {
				code = "0" + code
			}
			return code + ".HK"
		}
		return s
	default:
		return s
	}
}

// PriceBar is a single daily OHLCV bar. Bars are ordered ascending by date
// with no duplicate dates per symbol+market.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount"`
}

// Quote is the latest provider snapshot for a symbol. Price is nil when the
// provider is unavailable, never fabricated.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Market    Market    `json:"market"`
	Price     *float64  `json:"price"`
	Change    *float64  `json:"change"`
	ChangePct *float64  `json:"change_pct"`
	Volume    *float64  `json:"volume"`
	Amount    *float64  `json:"amount"`
	MarketCap *float64  `json:"market_cap"`
	High      *float64  `json:"high"`
	Low       *float64  `json:"low"`
	Open      *float64  `json:"open"`
	PrevClose *float64  `json:"prev_close"`
	Bid       *float64  `json:"bid,omitempty"`
	Ask       *float64  `json:"ask,omitempty"`
	PERatio   *float64  `json:"pe_ratio,omitempty"`
	AsOf      time.Time `json:"as_of"`
}

// Float returns a pointer to v. Convenience for building nullable fields.
func Float(v float64) *float64 {
	return &v
}
