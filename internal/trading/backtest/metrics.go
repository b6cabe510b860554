package backtest

import (
	"math"
	"time"

	"github.com/Alias1177/PaperTrader/models"
)

// EquityPoint is the account value, balance plus unrealized PnL, at one candle close.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Results holds the outcome of a backtest run
type Results struct {
	Symbols         []string
	Interval        string
	StartingBalance float64
	FinalBalance    float64

	Decisions        int
	RejectionReasons map[string]int
	OpenPositions    int

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinPercentage float64
	TotalPnL      float64
	TotalFees     float64
	AverageGain   float64
	AverageLoss   float64
	ProfitFactor  float64

	SharpeRatio         float64
	MaxDrawdown         float64
	EquityGrowthPercent float64
	MaxConsecutive      struct {
		Wins   int
		Losses int
	}

	MonthlyReturns map[string]float64
	EquityCurve    []EquityPoint
	Trades         []models.TradeRecord
}

// calculateMetrics fills the aggregate fields of results from its trades and equity curve.
func calculateMetrics(results *Results, periodsPerYear float64) {
	var grossWin, grossLoss float64
	var wins, losses int

	for _, t := range results.Trades {
		results.TotalPnL += t.NetPnL
		results.TotalFees += t.Fees

		if t.NetPnL > 0 {
			results.WinningTrades++
			grossWin += t.NetPnL
			wins++
			losses = 0
			if wins > results.MaxConsecutive.Wins {
				results.MaxConsecutive.Wins = wins
			}
		} else {
			results.LosingTrades++
			grossLoss += -t.NetPnL
			losses++
			wins = 0
			if losses > results.MaxConsecutive.Losses {
				results.MaxConsecutive.Losses = losses
			}
		}
	}

	results.TotalTrades = len(results.Trades)
	if results.TotalTrades > 0 {
		results.WinPercentage = float64(results.WinningTrades) / float64(results.TotalTrades) * 100
	}
	if results.WinningTrades > 0 {
		results.AverageGain = grossWin / float64(results.WinningTrades)
	}
	if results.LosingTrades > 0 {
		results.AverageLoss = grossLoss / float64(results.LosingTrades)
	}
	if grossLoss > 0 {
		results.ProfitFactor = grossWin / grossLoss
	}

	calculateMonthlyStats(results)

	if len(results.EquityCurve) == 0 {
		return
	}
	results.SharpeRatio = sharpeRatio(equityReturns(results.EquityCurve), periodsPerYear)
	results.MaxDrawdown = maxDrawdown(results.EquityCurve)
	if results.StartingBalance > 0 {
		final := results.EquityCurve[len(results.EquityCurve)-1].Equity
		results.EquityGrowthPercent = (final - results.StartingBalance) / results.StartingBalance * 100
	}
}

// calculateMonthlyStats groups realized PnL by exit month, in percent of the starting balance.
func calculateMonthlyStats(results *Results) {
	if results.StartingBalance <= 0 {
		return
	}
	for _, t := range results.Trades {
		month := t.ExitTime.UTC().Format("2006-01")
		results.MonthlyReturns[month] += t.NetPnL / results.StartingBalance * 100
	}
}

func equityReturns(curve []EquityPoint) []float64 {
	returns := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// sharpeRatio annualizes the per-period return series with a zero risk-free rate.
func sharpeRatio(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stdDev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(periodsPerYear)
}

// maxDrawdown returns the largest peak-to-trough decline of the curve, in percent.
func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	for i, p := range curve {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// Helper function to calculate mean
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Helper function to calculate sample standard deviation
func stdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		diff := v - m
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
