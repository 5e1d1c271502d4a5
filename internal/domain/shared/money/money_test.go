package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	m, err := New(8000, "usd")
	require.NoError(t, err)
	assert.Equal(t, Money{Amount: 8000, Currency: "USD"}, m)

	_, err = New(-1, "USD")
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = New(10, "US")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestString(t *testing.T) {
	assert.Equal(t, "80.05 EUR", Must(8005, "EUR").String())
	assert.Equal(t, "1200 JPY", Must(1200, "JPY").String())
}

func TestSameCurrency(t *testing.T) {
	assert.NoError(t, Must(1, "USD").SameCurrency(Must(2, "USD")))
	assert.ErrorIs(t, Must(1, "USD").SameCurrency(Must(2, "EUR")), ErrCurrencyMismatch)
}
