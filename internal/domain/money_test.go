package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStakeFromDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		cents   int64
		wantErr bool
	}{
		{name: "two decimals", input: "25.00", cents: 2500},
		{name: "one decimal", input: "0.5", cents: 50},
		{name: "integer", input: "10", cents: 1000},
		{name: "minimum", input: "0.01", cents: 1},
		{name: "maximum", input: "10000.00", cents: MaxStakeCents},
		{name: "above maximum", input: "10000.01", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-1.00", wantErr: true},
		{name: "three decimals", input: "1.001", wantErr: true},
		{name: "trailing zero third decimal", input: "1.000", wantErr: true},
		{name: "huge exponent", input: "1e50000000", wantErr: true},
		{name: "tiny exponent", input: "1e-50000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := StakeFromDecimal(decimal.RequireFromString(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cents, m.Cents())
		})
	}
}

func TestMoneyFromDecimalAllowsZero(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.Zero)
	require.NoError(t, err)
	assert.True(t, m.IsZero())

	_, err = MoneyFromDecimal(decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMoneyArithmetic(t *testing.T) {
	a, _ := MoneyFromCents(7500)
	b, _ := MoneyFromCents(2500)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), sum.Cents())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), diff.Cents())

	_, err = b.Sub(a)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	tripled, err := b.Mul(3)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), tripled.Cents())

	_, err = b.Mul(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMoneyOverflow(t *testing.T) {
	big, err := MoneyFromCents(math.MaxInt64)
	require.NoError(t, err)
	one, _ := MoneyFromCents(1)

	_, err = big.Add(one)
	assert.ErrorIs(t, err, ErrMoneyOverflow)

	_, err = big.Mul(2)
	assert.ErrorIs(t, err, ErrMoneyOverflow)
}

func TestMoneyString(t *testing.T) {
	m, _ := MoneyFromCents(7500)
	assert.Equal(t, "75.00", m.String())
	assert.Equal(t, "0.00", ZeroMoney.String())
	m, _ = MoneyFromCents(5)
	assert.Equal(t, "0.05", m.String())
}

func TestMoneyFromCentsRejectsNegative(t *testing.T) {
	_, err := MoneyFromCents(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMoneyFromDecimalRejectsHugeMagnitude(t *testing.T) {
	for _, input := range []string{"1e50000000", "99999999999999999999", "100000000000000000"} {
		start := time.Now()
		_, err := MoneyFromDecimal(decimal.RequireFromString(input))
		require.Error(t, err, input)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Less(t, len(err.Error()), 128)
		assert.NotContains(t, err.Error(), input)
		assert.Less(t, time.Since(start), time.Second)
	}

	m, err := MoneyFromDecimal(decimal.RequireFromString("99999999999999999.99"))
	require.Error(t, err)
	assert.Equal(t, ZeroMoney, m)

	m, err = MoneyFromDecimal(decimal.RequireFromString("10000000000000000.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000_000_000_000), m.Cents())

	m, err = MoneyFromDecimal(decimal.RequireFromString("0e100"))
	require.NoError(t, err)
	assert.True(t, m.IsZero())
}
