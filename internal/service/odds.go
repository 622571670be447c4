package service

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"racebet/internal/domain"
)

// OddsCalculator 根据 (session, driver, seed) 计算赔率
// 同一个 seed 下结果稳定，展示和下注时取到的赔率一致
type OddsCalculator struct {
	seed string
}

func NewOddsCalculator(seed string) *OddsCalculator {
	return &OddsCalculator{seed: seed}
}

func (c *OddsCalculator) Odds(session domain.SessionKey, driver domain.DriverNumber) domain.Odds {
	h := sha256.New()
	h.Write([]byte(c.seed))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(int64(session), 10)))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.Itoa(int(driver))))
	sum := h.Sum(nil)
	return domain.OddsFromBucket(binary.BigEndian.Uint64(sum[:8]))
}

// SeedFingerprint 日志中只输出 seed 的摘要
func (c *OddsCalculator) SeedFingerprint() string {
	sum := sha256.Sum256([]byte(c.seed))
	return hex.EncodeToString(sum[:4])
}
