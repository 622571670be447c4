package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeyRequestID 请求ID在 gin.Context 中的键，由 RequestID 中间件写入
const ContextKeyRequestID = "request_id"

// ErrorBody 统一错误响应
type ErrorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	RequestID string `json:"requestId,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error 写错误响应并中止后续处理
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      c.Request.URL.Path,
		RequestID: c.GetString(ContextKeyRequestID),
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "An unexpected error occurred")
}
