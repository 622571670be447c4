package domain

import "fmt"

// Odds 赔率，只允许 2、3、4 三个值
type Odds int

var allowedOdds = []Odds{2, 3, 4}

func OddsFromInt(v int) (Odds, error) {
	for _, o := range allowedOdds {
		if int(o) == v {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%w: odds must be one of 2, 3, 4, got %d", ErrInvalidInput, v)
}

// OddsFromBucket 把任意哈希值映射到赔率集合
func OddsFromBucket(h uint64) Odds {
	return allowedOdds[h%uint64(len(allowedOdds))]
}

func (o Odds) Int() int {
	return int(o)
}

// Payout 计算 stake * odds，精确无舍入
func (o Odds) Payout(stake Money) (Money, error) {
	return stake.Mul(int64(o))
}
