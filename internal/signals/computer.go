package signals

import (
	"github.com/tickwatch/tickwatch/internal/models"
)

// Snapshot computes the full indicator snapshot for a symbol from its
// daily bar history (oldest first). The quote, when available, contributes
// name, market cap and PE; the snapshot never fails, it degrades to nil
// fields when history is too short.
func Snapshot(market models.Market, symbol string, bars []models.PriceBar, quote *models.Quote) *models.IndicatorSnapshot {
	snap := &models.IndicatorSnapshot{
		Symbol:   symbol,
		Market:   market,
		Currency: market.Currency(),
	}

	if quote != nil {
		snap.Name = quote.Name
		snap.MarketCap = quote.MarketCap
		snap.PERatio = quote.PERatio
	}

	if len(bars) == 0 {
		return snap
	}

	last := bars[len(bars)-1]
	snap.AsOf = last.Date.Format("2006-01-02")
	if last.Amount > 0 {
		snap.Amount = models.Float(last.Amount)
	}

	closes := Closes(bars)

	snap.MA5 = SMA(closes, MA5Period)
	snap.MA20 = SMA(closes, MA20Period)
	snap.MA60 = SMA(closes, MA60Period)

	snap.SlopeRaw, snap.SlopePct = Slope(closes)
	snap.Trend = TrendLabel(snap.SlopePct)

	rsi := RSISeries(closes, RSIPeriod)
	snap.RSI14 = lastValue(rsi)
	snap.RSIRebound = rsiRebound(rsi)

	dif, dea, hist := MACDSeries(closes)
	snap.MACDDif = lastValue(dif)
	snap.MACDDea = lastValue(dea)
	snap.MACDHist = lastValue(hist)

	snap.ATR14 = lastValue(ATRSeries(bars, ATRPeriod))

	snap.High52W, snap.Low52W = HighLow52W(bars)

	return snap
}

func lastValue(series []*float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	return series[len(series)-1]
}

// rsiRebound reports whether RSI hooked upward from a low position:
// yesterday below the day before, today above yesterday, and yesterday
// under the oversold threshold. Nil until three RSI values exist.
func rsiRebound(rsi []*float64) *bool {
	if len(rsi) < 3 {
		return nil
	}
	today := rsi[len(rsi)-1]
	yesterday := rsi[len(rsi)-2]
	before := rsi[len(rsi)-3]
	if today == nil || yesterday == nil || before == nil {
		return nil
	}

	hookUp := *yesterday < *before && *today > *yesterday
	lowPosition := *yesterday < RSIOversold
	rebound := hookUp && lowPosition
	return &rebound
}
