package market

import "fmt"

// FormatMoney renders a dollar amount with a magnitude suffix, e.g.
// $1.23T, $45.60B, $870.00M.
func FormatMoney(v float64) string {
	neg := ""
	if v < 0 {
		neg = "-"
		v = -v
	}

	switch {
	case v >= 1e12:
		return fmt.Sprintf("%s$%.2fT", neg, v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%s$%.2fB", neg, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s$%.2fM", neg, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s$%.2fK", neg, v/1e3)
	default:
		return fmt.Sprintf("%s$%.2f", neg, v)
	}
}

// FormatPercent renders a fraction as a percentage, e.g. 0.123 -> 12.3%.
func FormatPercent(frac float64) string {
	return fmt.Sprintf("%.1f%%", frac*100)
}
