package features

import "math"

// emaSeries returns the exponential moving average of values. Leading NaN inputs are skipped;
// the first output is the simple average of the first period valid values.
func emaSeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}

	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out
	}

	// Calculate simple moving average for the initial value
	var sum float64
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[start+period-1] = ema

	// Multiplier for weighting the EMA
	multiplier := 2.0 / float64(period+1)
	for i := start + period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// rsiSeries computes Wilder's RSI over closes.
func rsiSeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
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
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

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
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// macdSeries returns the MACD line and its signal line.
func macdSeries(closes []float64, fastPeriod, slowPeriod, signalPeriod int) (line, signal []float64) {
	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	line = nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			line[i] = fast[i] - slow[i]
		}
	}
	signal = emaSeries(line, signalPeriod)
	return line, signal
}

// bollingerSeries computes bands over a simple moving average with population standard deviation.
func bollingerSeries(closes []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	upper, middle, lower = nanSlice(len(closes)), nanSlice(len(closes)), nanSlice(len(closes))
	if period <= 0 {
		return upper, middle, lower
	}

	for i := period - 1; i < len(closes); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += closes[j]
		}
		mid := sum / float64(period)

		var variance float64
		for j := i - period + 1; j <= i; j++ {
			variance += math.Pow(closes[j]-mid, 2)
		}
		sd := math.Sqrt(variance / float64(period))

		middle[i] = mid
		upper[i] = mid + sd*stdDev
		lower[i] = mid - sd*stdDev
	}
	return upper, middle, lower
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
