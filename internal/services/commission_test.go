package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCommission(t *testing.T) {
	t.Run("whole percentages", func(t *testing.T) {
		tests := []struct {
			amount   int64
			rate     int
			expected int64
		}{
			{100000, 40, 40000}, // 1000.00 at 40% -> 400.00
			{50000, 10, 5000},
			{100, 1, 1},
			{1, 100, 1},
			{999, 33, 330}, // 329.67 rounds up
		}

		for _, tt := range tests {
			got, err := CalculateCommission(tt.amount, tt.rate)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got, "amount=%d rate=%d", tt.amount, tt.rate)
		}
	})

	t.Run("rounds half up", func(t *testing.T) {
		// 150 * 1% = 1.5 minor units -> 2
		got, err := CalculateCommission(150, 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), got)

		// 149 * 1% = 1.49 -> 1
		got, err = CalculateCommission(149, 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), got)

		// 250 * 1% = 2.5 -> 3, not banker's 2
		got, err = CalculateCommission(250, 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), got)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := CalculateCommission(0, 40)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = CalculateCommission(-500, 40)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("invalid rate", func(t *testing.T) {
		_, err := CalculateCommission(1000, 0)
		assert.ErrorIs(t, err, ErrInvalidRate)

		_, err = CalculateCommission(1000, 101)
		assert.ErrorIs(t, err, ErrInvalidRate)

		_, err = CalculateCommission(1000, -5)
		assert.ErrorIs(t, err, ErrInvalidRate)
	})
}

func TestParseAmount(t *testing.T) {
	t.Run("valid amounts", func(t *testing.T) {
		tests := map[string]int64{
			"1000":    100000,
			"1000.00": 100000,
			"125.50":  12550,
			"0.01":    1,
			"5.1":     510,
		}
		for in, want := range tests {
			got, err := ParseAmount(in)
			assert.NoError(t, err)
			assert.Equal(t, want, got, "input %q", in)
		}
	})

	t.Run("rejected amounts", func(t *testing.T) {
		for _, in := range []string{"0", "-10", "1.005", "abc", ""} {
			_, err := ParseAmount(in)
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
		}
	})
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "400.00", FormatAmount(40000))
	assert.Equal(t, "0.01", FormatAmount(1))
	assert.Equal(t, "12.50", FormatAmount(1250))
}
