package humanize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountAppliesAssetScale(t *testing.T) {
	assert.Equal(t, "1.5 XRP", Amount(1500000000, 9, "XRP"))
}

func TestAmountZeroScale(t *testing.T) {
	assert.Equal(t, "42 JPY", Amount(42, 0, "JPY"))
}

func TestAmountWithoutAssetCode(t *testing.T) {
	assert.Equal(t, "0.01", Amount(1, 2, ""))
}

func TestAmountZeroValue(t *testing.T) {
	assert.Equal(t, "0 USD", Amount(0, 2, "USD"))
}
