package revenue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalMonths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		interval string
		want     float64
	}{
		{"month", 1},
		{"months", 1},
		{"year", 12},
		{"2 years", 24},
		{"6 months", 6},
		{"6 Months", 6},
		{" 1 month ", 1},
		{"week", 12.0 / 52},
		{"2 weeks", 24.0 / 52},
		{"day", 12.0 / 365},
	}
	for _, tt := range tests {
		got, err := intervalMonths(tt.interval)
		require.NoError(t, err, tt.interval)
		assert.InDelta(t, tt.want, got, 1e-9, tt.interval)
	}

	for _, bad := range []string{"", "fortnight", "0 months", "-1 month", "six months", "1 2 3"} {
		_, err := intervalMonths(bad)
		assert.ErrorIs(t, err, ErrUnparseableInterval, bad)
	}
}
