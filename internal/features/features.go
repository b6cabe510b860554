// Package features turns a window of closed candles into indicator-enriched rows
// for the strategy evaluators.
package features

import (
	"github.com/Alias1177/PaperTrader/models"
)

// Params holds indicator periods.
type Params struct {
	RSIPeriod        int
	EMAFastPeriod    int
	EMASlowPeriod    int
	MACDFastPeriod   int
	MACDSlowPeriod   int
	MACDSignalPeriod int
	BBPeriod         int
	BBStdDev         float64
}

// DefaultParams mirrors the periods the strategies were tuned with.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		EMAFastPeriod:    9,
		EMASlowPeriod:    21,
		MACDFastPeriod:   12,
		MACDSlowPeriod:   26,
		MACDSignalPeriod: 9,
		BBPeriod:         20,
		BBStdDev:         2.0,
	}
}

// Build computes one FeatureRow per candle. Candles must be sorted oldest first.
func Build(candles []models.Candle, p Params) []models.FeatureRow {
	if len(candles) == 0 {
		return nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	rsi := rsiSeries(closes, p.RSIPeriod)
	emaFast := emaSeries(closes, p.EMAFastPeriod)
	emaSlow := emaSeries(closes, p.EMASlowPeriod)
	macd, macdSignal := macdSeries(closes, p.MACDFastPeriod, p.MACDSlowPeriod, p.MACDSignalPeriod)
	upper, middle, lower := bollingerSeries(closes, p.BBPeriod, p.BBStdDev)

	rows := make([]models.FeatureRow, len(candles))
	for i, c := range candles {
		row := models.EmptyFeatureRow(c)
		row.RSI = rsi[i]
		row.EMAFast = emaFast[i]
		row.EMASlow = emaSlow[i]
		row.MACD = macd[i]
		row.MACDSignal = macdSignal[i]
		row.BBUpper = upper[i]
		row.BBMiddle = middle[i]
		row.BBLower = lower[i]
		rows[i] = row
	}
	return rows
}

// Latest returns the newest row and, when available, the one before it.
func Latest(candles []models.Candle, p Params) (row models.FeatureRow, prev *models.FeatureRow, ok bool) {
	rows := Build(candles, p)
	if len(rows) == 0 {
		return models.FeatureRow{}, nil, false
	}
	row = rows[len(rows)-1]
	if len(rows) > 1 {
		prevRow := rows[len(rows)-2]
		prev = &prevRow
	}
	return row, prev, true
}
