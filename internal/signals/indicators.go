// Package signals provides technical indicator calculations and the
// buy/sell rule evaluation built on top of them.
//
// All series are ordered oldest first. Functions return nil instead of a
// value whenever the underlying window has insufficient history; callers
// must treat nil as "unavailable", never as zero.
package signals

import (
	"math"

	"github.com/tickwatch/tickwatch/internal/models"
)

// Window constants. These are the contract of the rule engine; tune here,
// not inline.
const (
	MA5Period  = 5
	MA20Period = 20
	MA60Period = 60

	RSIPeriod = 14
	ATRPeriod = 14

	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9

	// SlopeWindow is the regression window for the trend slope.
	SlopeWindow = 20

	// YearWindow approximates 52 weeks of trading days.
	YearWindow = 252
)

// Closes extracts the close series from bars, oldest first
func Closes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA calculates the simple moving average of the last period values.
// Returns nil if fewer than period values exist.
func SMA(values []float64, period int) *float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return models.Float(sum / float64(period))
}

// EMASeries calculates the exponential moving average of the whole series,
// seeded with the first value.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	multiplier := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// RSISeries calculates Wilder's smoothed RSI over the close series.
// Entries are nil until period deltas exist. If the smoothed average loss
// is zero, RSI is 100.
func RSISeries(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	// First average is a plain SMA, then Wilder smoothing.
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out
}

func rsiValue(avgGain, avgLoss float64) *float64 {
	if avgLoss == 0 {
		return models.Float(100)
	}
	rs := avgGain / avgLoss
	return models.Float(100 - (100 / (1 + rs)))
}

// MACDSeries calculates MACD over the close series using the 12/26/9
// EMA construction: DIF = EMA(fast) − EMA(slow), DEA = EMA(signal) of DIF,
// hist = (DIF − DEA) × 2. DIF entries are nil until the slow window is
// filled; DEA and hist until slow+signal bars exist.
func MACDSeries(closes []float64) (dif, dea, hist []*float64) {
	n := len(closes)
	dif = make([]*float64, n)
	dea = make([]*float64, n)
	hist = make([]*float64, n)
	if n == 0 {
		return dif, dea, hist
	}

	fast := EMASeries(closes, MACDFastPeriod)
	slow := EMASeries(closes, MACDSlowPeriod)

	difRaw := make([]float64, n)
	for i := 0; i < n; i++ {
		difRaw[i] = fast[i] - slow[i]
	}
	deaRaw := EMASeries(difRaw, MACDSignalPeriod)

	for i := 0; i < n; i++ {
		if i+1 < MACDSlowPeriod {
			continue
		}
		dif[i] = models.Float(difRaw[i])
		if i+1 < MACDSlowPeriod+MACDSignalPeriod {
			continue
		}
		dea[i] = models.Float(deaRaw[i])
		hist[i] = models.Float((difRaw[i] - deaRaw[i]) * 2)
	}

	return dif, dea, hist
}

// ATRSeries calculates Wilder's average true range over the bar series.
// Entries are nil until period true ranges exist.
func ATRSeries(bars []models.PriceBar, period int) []*float64 {
	out := make([]*float64, len(bars))
	if period <= 0 || len(bars) < period+1 {
		return out
	}

	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		tr[i] = trueRange(bars[i], bars[i-1].Close)
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period] = models.Float(atr)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = models.Float(atr)
	}

	return out
}

func trueRange(bar models.PriceBar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	tr = math.Max(tr, math.Abs(bar.High-prevClose))
	return math.Max(tr, math.Abs(bar.Low-prevClose))
}

// Slope fits a least-squares line to the last SlopeWindow values against
// bar index and returns the raw slope plus the slope normalized by the
// window mean, in percent. Both are nil on insufficient history or a zero
// mean.
func Slope(values []float64) (raw, pct *float64) {
	if len(values) < SlopeWindow {
		return nil, nil
	}

	window := values[len(values)-SlopeWindow:]
	n := float64(len(window))

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil, nil
	}
	slope := (n*sumXY - sumX*sumY) / denom

	mean := sumY / n
	if mean == 0 {
		return models.Float(slope), nil
	}
	return models.Float(slope), models.Float(slope / mean * 100)
}

// trendEps is the slope_pct band treated as flat, in percent.
const trendEps = 0.02

// TrendLabel classifies slope_pct into 上涨/下跌/盘整. Returns nil when the
// slope is unavailable.
func TrendLabel(slopePct *float64) *string {
	if slopePct == nil {
		return nil
	}
	switch {
	case *slopePct > trendEps:
		s := models.TrendRising
		return &s
	case *slopePct < -trendEps:
		s := models.TrendFalling
		return &s
	default:
		s := models.TrendFlat
		return &s
	}
}

// HighLow52W returns the max high and min low over the trailing YearWindow
// bars, falling back to the full available window when history is shorter.
func HighLow52W(bars []models.PriceBar) (high, low *float64) {
	if len(bars) == 0 {
		return nil, nil
	}

	window := bars
	if len(window) > YearWindow {
		window = window[len(window)-YearWindow:]
	}

	hi := window[0].High
	lo := window[0].Low
	for _, b := range window[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	return models.Float(hi), models.Float(lo)
}
