package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "$1,234.50", FormatUSD(1234.5))
	assert.Equal(t, "$1,000,000.00", FormatUSD(1_000_000))
	assert.Equal(t, "-$420.75", FormatUSD(-420.75))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "+3.25%", FormatPercent(3.25))
	assert.Equal(t, "-1.50%", FormatPercent(-1.5))
	assert.Equal(t, "0.00%", FormatPercent(0))
}

func TestFormatPnL(t *testing.T) {
	assert.Equal(t, "+$100.00", FormatPnL(100))
	assert.Equal(t, "-$100.00", FormatPnL(-100))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "10", FormatQuantity(10))
	assert.Equal(t, "0.5", FormatQuantity(0.5))
}
