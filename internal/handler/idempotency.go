package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"racebet/internal/idempotency"
	"racebet/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// captureWriter 边写给客户端边留一份，用于缓存响应
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// maxIdempotentBodyBytes 写请求体上限，超出直接 413，不参与哈希
const maxIdempotentBodyBytes = 64 << 10

// failedPayload FAILED 记录只保存状态码与通用描述，不落原始错误响应
func failedPayload(status int) []byte {
	b, _ := json.Marshal(struct {
		Status int    `json:"status"`
		Error  string `json:"error"`
	}{Status: status, Error: http.StatusText(status)})
	return b
}

func requiresIdempotency(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// IdempotencyMiddleware 写请求必须携带 Idempotency-Key
//
// 同 key 同请求重放缓存响应；同 key 不同请求返回 409。
// 成功响应先发给客户端再落库，落库失败不影响本次请求。
func IdempotencyMiddleware(guard *idempotency.Guard, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requiresIdempotency(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if err := idempotency.ValidateKey(key); err != nil {
			log.Warn("Idempotency-Key 缺失或格式错误",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			)
			fail(c, log, err)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxIdempotentBodyBytes)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(c, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			response.ParamError(c, "unable to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		userID := c.GetHeader(HeaderUserID)
		req := idempotency.Request{
			Key:         key,
			RequestorID: userID,
			Hash:        idempotency.HashRequest(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, body, userID),
		}

		// 客户端断开不应影响幂等记录的读写
		ctx := context.WithoutCancel(c.Request.Context())

		cached, err := guard.Begin(ctx, req)
		if err != nil {
			fail(c, log, err)
			return
		}
		if cached != nil {
			c.Data(cached.Status, "application/json; charset=utf-8", []byte(cached.Payload))
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		defer func() {
			if p := recover(); p != nil {
				guard.Fail(ctx, key, http.StatusInternalServerError, failedPayload(http.StatusInternalServerError))
				panic(p)
			}
		}()

		c.Next()

		status := w.Status()
		if len(c.Errors) > 0 || status >= http.StatusBadRequest {
			guard.Fail(ctx, key, status, failedPayload(status))
			return
		}

		w.Flush()
		guard.Complete(ctx, key, status, w.body.Bytes())
	}
}
