package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSmartRound(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"23.50", "24.99"},
		{"0", "24.99"},
		{"24.99", "24.99"},
		{"25.00", "49.99"},
		{"99.99", "99.99"},
		{"100", "124.99"},
		{"249.99", "249.99"},
		{"250.00", "274.99"},
		{"260.00", "274.99"},
		{"310.50", "324.99"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, d(tt.want).Equal(SmartRound(d(tt.in))), "SmartRound(%s) = %s", tt.in, SmartRound(d(tt.in)))
		})
	}
}

func TestCompareAt(t *testing.T) {
	assert.Equal(t, "50", CompareAt(d("24.99")).String())
	assert.Equal(t, "550", CompareAt(d("274.99")).String())
}

func TestTransform(t *testing.T) {
	q, err := Transform("19.90", d("1.5"))
	require.NoError(t, err)
	assert.Equal(t, "49.99", q.PriceString())
	assert.Equal(t, "100", q.CompareAtString())
}

func TestTransform_Errors(t *testing.T) {
	_, err := Transform("abc", d("1.2"))
	assert.Error(t, err)

	_, err = Transform("-1", d("1.2"))
	assert.Error(t, err)
}

func TestNeedsAdjustment(t *testing.T) {
	assert.False(t, NeedsAdjustment(d("1.0")))
	assert.True(t, NeedsAdjustment(d("1.25")))
}
