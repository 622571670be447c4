package domain

import (
	"errors"
	"fmt"
)

// ============================================================================
// 业务错误定义
// ============================================================================
//
// 调用方通过 errors.Is 区分错误类别，handler 层据此映射 HTTP 状态码。
// 需要附带上下文时用 fmt.Errorf("%w: ...") 包装，不要新建同义错误。

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadySettled      = errors.New("event already settled")
	ErrSessionNotFound     = errors.New("session not found")
	ErrDriverNotInSession  = errors.New("driver not in session")
	ErrEventNotEnded       = errors.New("event has not ended")
	ErrProviderUnavailable = errors.New("session data provider unavailable")
	ErrAccountNotFound     = errors.New("account not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrRequestInProgress   = errors.New("request in progress")

	// 以下两类属于程序不变量被破坏，不是用户输入错误
	ErrIllegalTransition = errors.New("illegal bet status transition")
	ErrMoneyOverflow     = errors.New("money arithmetic overflow")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsBusiness 判断是否为可预期的业务错误（非系统故障）
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrInvalidInput,
		ErrInsufficientBalance,
		ErrAlreadySettled,
		ErrSessionNotFound,
		ErrDriverNotInSession,
		ErrEventNotEnded,
		ErrAccountNotFound,
		ErrIdempotencyConflict,
		ErrRequestInProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
