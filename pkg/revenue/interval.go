package revenue

import (
	"fmt"
	"strconv"
	"strings"
)

// intervalMonths normalizes a billing interval into its length in months.
// Providers report both simple units ("month", "year") and compound values
// ("6 months", "2 years"); legacy rows use the same shapes lowercased
// inconsistently.
func intervalMonths(interval string) (float64, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(interval)))

	count := 1.0
	unit := ""
	switch len(fields) {
	case 1:
		unit = fields[0]
	case 2:
		n, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrUnparseableInterval, interval)
		}
		count = n
		unit = fields[1]
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnparseableInterval, interval)
	}

	switch strings.TrimSuffix(unit, "s") {
	case "month":
		return count, nil
	case "year":
		return count * 12, nil
	case "week":
		return count * 12 / 52, nil
	case "day":
		return count * 12 / 365, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnparseableInterval, interval)
	}
}
