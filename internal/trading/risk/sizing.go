package risk

// PositionSize returns the hypothetical trade size used by the risk check.
// The USD amount at risk is balance*riskPct, floored at minNotional.
func PositionSize(balance, price, riskPct, minNotional float64) float64 {
	if price <= 0 {
		return 0
	}
	usdRisk := balance * riskPct
	if usdRisk < minNotional {
		usdRisk = minNotional
	}
	return usdRisk / price
}

// ChangePct is the fractional move from entry to price.
func ChangePct(entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	return (price - entry) / entry
}
