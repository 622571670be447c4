package handler

import (
	"errors"
	"net/http"

	"racebet/internal/domain"
	"racebet/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 业务错误到 HTTP 状态码的映射，顺序无关：各哨兵错误互不包装
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired},
	{domain.ErrAccountNotFound, http.StatusNotFound},
	{domain.ErrAlreadySettled, http.StatusConflict},
	{domain.ErrIdempotencyConflict, http.StatusConflict},
	{domain.ErrRequestInProgress, http.StatusConflict},
	{domain.ErrSessionNotFound, http.StatusUnprocessableEntity},
	{domain.ErrDriverNotInSession, http.StatusUnprocessableEntity},
	{domain.ErrEventNotEnded, http.StatusUnprocessableEntity},
	{domain.ErrProviderUnavailable, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// fail 写错误响应；5xx 只返回通用信息，细节进日志
func fail(c *gin.Context, log *zap.Logger, err error) {
	_ = c.Error(err)

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("请求处理失败",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(response.ContextKeyRequestID)),
			zap.Error(err),
		)
		if status == http.StatusServiceUnavailable {
			response.Error(c, status, "Session data provider is temporarily unavailable")
			return
		}
		response.ServerError(c)
		return
	}
	response.Error(c, status, err.Error())
}
