package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"racebet/internal/domain"
)

// Driver 场次参赛车手
type Driver struct {
	Number   domain.DriverNumber `json:"number"`
	FullName string              `json:"full_name"`
	TeamName string              `json:"team_name"`
	Acronym  string              `json:"acronym"`
}

// Session 场次元数据，End 为空表示尚未结束或数据源未给出
type Session struct {
	Key              domain.SessionKey `json:"key"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	CircuitShortName string            `json:"circuit_short_name"`
	CountryName      string            `json:"country_name"`
	CountryCode      string            `json:"country_code"`
	Start            *time.Time        `json:"start,omitempty"`
	End              *time.Time        `json:"end,omitempty"`
	Year             int               `json:"year"`
	Drivers          []Driver          `json:"drivers"`
}

func (s *Session) HasDriver(n domain.DriverNumber) bool {
	for _, d := range s.Drivers {
		if d.Number == n {
			return true
		}
	}
	return false
}

// EndedBy 结束时间存在且不晚于 now
func (s *Session) EndedBy(now time.Time) bool {
	return s.End != nil && !s.End.After(now)
}

type Query struct {
	SessionType string
	Year        int
	CountryCode string
}

func (q Query) cacheKey() string {
	return fmt.Sprintf("type=%s:year=%d:country=%s",
		strings.ToLower(q.SessionType), q.Year, strings.ToUpper(q.CountryCode))
}

// SessionProvider 外部赛事数据源
//
// fresh=true 时不读缓存也不回写缓存，结算等资金决策使用。
// 场次不存在返回 domain.ErrSessionNotFound，数据源不可用返回 domain.ErrProviderUnavailable。
type SessionProvider interface {
	Session(ctx context.Context, key domain.SessionKey, fresh bool) (*Session, error)
	Sessions(ctx context.Context, q Query, fresh bool) ([]Session, error)
}
