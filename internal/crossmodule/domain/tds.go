package domain

import "strings"

// TDS rates by Income Tax Act section, in basis points.
var tdsRates = map[string]int64{
	"194C": 200,
	"194J": 1000,
	"194H": 500,
	"194I": 1000,
	"194Q": 10,
}

// TDSRate returns the rate in basis points; unknown sections withhold nothing.
func TDSRate(section string) int64 {
	return tdsRates[strings.ToUpper(strings.TrimSpace(section))]
}

// ComputeTDS rounds the withholding down to the minor unit.
func ComputeTDS(amount int64, section string) int64 {
	if amount <= 0 {
		return 0
	}
	return amount * TDSRate(section) / 10000
}
