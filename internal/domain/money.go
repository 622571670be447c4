package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	MinStakeCents int64 = 1
	MaxStakeCents int64 = 1_000_000 // 10,000.00
)

// Money 以最小货币单位（分）表示的非负金额
//
// 只在 API 边界与 decimal 互转，内部一律整数运算，payout = stake * odds 不存在舍入。
type Money struct {
	cents int64
}

var ZeroMoney = Money{}

func MoneyFromCents(cents int64) (Money, error) {
	if cents < 0 {
		return Money{}, invalidf("money cannot be negative: %d cents", cents)
	}
	return Money{cents: cents}, nil
}

func StakeFromCents(cents int64) (Money, error) {
	if cents < MinStakeCents {
		return Money{}, invalidf("stake must be positive: %d cents", cents)
	}
	if cents > MaxStakeCents {
		return Money{}, invalidf("stake exceeds maximum allowed: %d cents (max: %d)", cents, MaxStakeCents)
	}
	return Money{cents: cents}, nil
}

// MoneyFromDecimal 解析 API 传入的金额，例如 25.00 -> 2500 分
func MoneyFromDecimal(amount decimal.Decimal) (Money, error) {
	cents, err := decimalToCents(amount)
	if err != nil {
		return Money{}, err
	}
	return MoneyFromCents(cents)
}

func StakeFromDecimal(amount decimal.Decimal) (Money, error) {
	cents, err := decimalToCents(amount)
	if err != nil {
		return Money{}, err
	}
	return StakeFromCents(cents)
}

// maxAmountIntDigits 金额整数部分最多位数，超过一定溢出 int64 分
const maxAmountIntDigits = 17

func decimalToCents(amount decimal.Decimal) (int64, error) {
	// 错误信息不回显原始金额，避免超长输入被放大
	if amount.Exponent() < -2 {
		return 0, invalidf("amount cannot have more than 2 decimal places")
	}
	if amount.Sign() < 0 {
		return 0, invalidf("amount cannot be negative")
	}
	if amount.Sign() == 0 {
		return 0, nil
	}
	// 先按位数判断量级，Shift/BigInt 的代价与指数成正比
	if amount.NumDigits()+int(amount.Exponent()) > maxAmountIntDigits {
		return 0, invalidf("amount too large")
	}
	cents := amount.Shift(2).BigInt()
	if !cents.IsInt64() {
		return 0, invalidf("amount too large")
	}
	return cents.Int64(), nil
}

func (m Money) Cents() int64 {
	return m.cents
}

func (m Money) Add(other Money) (Money, error) {
	if m.cents > math.MaxInt64-other.cents {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrMoneyOverflow, m.cents, other.cents)
	}
	return Money{cents: m.cents + other.cents}, nil
}

// Sub 结果小于零时返回 ErrInsufficientBalance
func (m Money) Sub(other Money) (Money, error) {
	if other.cents > m.cents {
		return Money{}, fmt.Errorf("%w: cannot subtract %d cents from %d cents", ErrInsufficientBalance, other.cents, m.cents)
	}
	return Money{cents: m.cents - other.cents}, nil
}

func (m Money) Mul(factor int64) (Money, error) {
	if factor < 0 {
		return Money{}, invalidf("cannot multiply by negative factor: %d", factor)
	}
	if factor != 0 && m.cents > math.MaxInt64/factor {
		return Money{}, fmt.Errorf("%w: %d * %d", ErrMoneyOverflow, m.cents, factor)
	}
	return Money{cents: m.cents * factor}, nil
}

func (m Money) LessThan(other Money) bool {
	return m.cents < other.cents
}

func (m Money) IsZero() bool {
	return m.cents == 0
}

// Decimal 仅用于 API 响应
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.cents, -2)
}

// String 固定两位小数，例如 "75.00"
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
