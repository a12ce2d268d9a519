package signals

import (
	"fmt"
	"math"
	"strings"

	"github.com/tickwatch/tickwatch/internal/models"
)

// Rule thresholds. Kept as named constants so the strategy can be tuned
// without hunting for inline magic numbers.
const (
	// RSIOversold is the low-position ceiling for the RSI rebound test.
	RSIOversold = 40.0

	// RSIOverbought marks the take-profit zone.
	RSIOverbought = 70.0

	// MA20Band is the relative tolerance for "price near MA20".
	MA20Band = 0.02

	// ATRStopMultiple sets the stop line at buy_price − N × ATR.
	ATRStopMultiple = 2.0

	// DivergenceWindow bounds the lookback for top-divergence detection;
	// the test is skipped below DivergenceMinWindow bars.
	DivergenceWindow    = 20
	DivergenceMinWindow = 10
)

const (
	buyReasonConfirmed = "买入>MA60 且 MA60上行，买入≈MA20，RSI出现低位拐头"
	buyReasonWaiting   = "条件未满足"

	sellReasonStopLoss   = "止损：跌破 买入价-2×ATR（止损线≈%.3f）"
	sellReasonBreakMA20  = "止盈：跌破 MA20（短期趋势结束）"
	sellReasonDivergence = "止盈：RSI>70 且顶背离"
)

// Evaluate derives the buy/sell recommendation from an indicator snapshot
// and the bar history that produced it. It never fails: whenever a required
// input is nil the corresponding side degrades to the unavailable state
// with a nil price.
func Evaluate(snap *models.IndicatorSnapshot, bars []models.PriceBar) *models.SignalRecommendation {
	rec := &models.SignalRecommendation{
		BuyOK:  models.SignalUnavailable,
		SellOK: models.SignalUnavailable,
	}
	if snap == nil || len(bars) == 0 {
		return rec
	}

	lastClose := bars[len(bars)-1].Close

	evaluateBuy(rec, snap, lastClose)
	evaluateSell(rec, snap, bars, lastClose)

	return rec
}

// evaluateBuy checks the aggressive entry: price above MA60 with MA60
// trending up, price near MA20, and RSI hooking up from a low position.
// The target entry is MA20 regardless of whether the conjunction holds.
func evaluateBuy(rec *models.SignalRecommendation, snap *models.IndicatorSnapshot, lastClose float64) {
	if snap.MA20 == nil || snap.MA60 == nil || snap.SlopePct == nil || snap.RSIRebound == nil {
		return
	}

	aboveMA60 := lastClose > *snap.MA60
	// any positive slope counts, not just slopes past the trend-label band
	trendUp := *snap.SlopePct > 0
	nearMA20 := math.Abs(lastClose-*snap.MA20)/math.Max(math.Abs(*snap.MA20), 1e-9) <= MA20Band
	rebound := *snap.RSIRebound

	rec.BuyPriceAggressive = snap.MA20

	if aboveMA60 && trendUp && nearMA20 && rebound {
		rec.BuyOK = models.SignalConfirmed
		reason := buyReasonConfirmed
		rec.BuyReason = &reason
		return
	}

	rec.BuyOK = models.SignalWaiting
	var failed []string
	if !aboveMA60 {
		failed = append(failed, "价格未站上MA60")
	}
	if !trendUp {
		failed = append(failed, "MA60未上行")
	}
	if !nearMA20 {
		failed = append(failed, "价格未贴近MA20")
	}
	if !rebound {
		failed = append(failed, "RSI未出现低位拐头")
	}
	reason := buyReasonWaiting
	if len(failed) > 0 {
		reason = buyReasonWaiting + "：" + strings.Join(failed, "，")
	}
	rec.BuyReason = &reason
}

// evaluateSell checks the exit tests in stop-loss, MA20-break, divergence
// order. The stop line is anchored on the reference buy price, which only
// exists while the buy side is confirmed.
func evaluateSell(rec *models.SignalRecommendation, snap *models.IndicatorSnapshot, bars []models.PriceBar, lastClose float64) {
	if snap.MA20 == nil || snap.RSI14 == nil || snap.ATR14 == nil {
		return
	}

	breakMA20 := lastClose < *snap.MA20

	takeProfit := *snap.RSI14 > RSIOverbought
	divergence := takeProfit && topDivergence(bars, lastClose, *snap.RSI14)

	var stopLine *float64
	stopTrigger := false
	if rec.BuyOK == models.SignalConfirmed {
		referenceBuy := lastClose
		line := referenceBuy - ATRStopMultiple*(*snap.ATR14)
		stopLine = &line
		stopTrigger = lastClose <= line
	}

	switch {
	case stopLine != nil:
		rec.SellPrice = stopLine
	default:
		rec.SellPrice = snap.MA20
	}

	if (takeProfit && divergence) || breakMA20 || stopTrigger {
		rec.SellOK = models.SignalConfirmed
		var reason string
		switch {
		case stopTrigger:
			reason = fmt.Sprintf(sellReasonStopLoss, *stopLine)
		case breakMA20:
			reason = sellReasonBreakMA20
		default:
			reason = sellReasonDivergence
		}
		rec.SellReason = &reason
		return
	}

	rec.SellOK = models.SignalWaiting
}

// topDivergence reports a new price high that RSI failed to confirm within
// the trailing window, excluding the latest bar.
func topDivergence(bars []models.PriceBar, lastClose, lastRSI float64) bool {
	win := DivergenceWindow
	if len(bars)-1 < win {
		win = len(bars) - 1
	}
	if win < DivergenceMinWindow {
		return false
	}

	closes := Closes(bars)
	rsi := RSISeries(closes, RSIPeriod)

	prevMaxClose := math.Inf(-1)
	prevMaxRSI := math.Inf(-1)
	seenRSI := false
	for i := len(bars) - 1 - win; i < len(bars)-1; i++ {
		if closes[i] > prevMaxClose {
			prevMaxClose = closes[i]
		}
		if rsi[i] != nil && *rsi[i] > prevMaxRSI {
			prevMaxRSI = *rsi[i]
			seenRSI = true
		}
	}
	if !seenRSI {
		return false
	}

	return lastClose > prevMaxClose && lastRSI < prevMaxRSI
}
