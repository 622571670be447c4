package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// UserID 即账户ID，由调用方通过 X-User-Id 传入
type UserID string

func ParseUserID(raw string) (UserID, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", invalidf("user id is required")
	}
	if !userIDPattern.MatchString(v) {
		return "", invalidf("user id must be 1-100 characters of letters, digits, '_' or '-'")
	}
	return UserID(v), nil
}

func (u UserID) String() string {
	return string(u)
}

type SessionKey int64

func ParseSessionKey(v int64) (SessionKey, error) {
	if v <= 0 {
		return 0, invalidf("session key must be positive: %d", v)
	}
	return SessionKey(v), nil
}

type DriverNumber int

func ParseDriverNumber(v int) (DriverNumber, error) {
	if v < 1 || v > 99 {
		return 0, invalidf("driver number must be between 1 and 99: %d", v)
	}
	return DriverNumber(v), nil
}

type BetID string

func NewBetID() BetID {
	return BetID(uuid.NewString())
}
