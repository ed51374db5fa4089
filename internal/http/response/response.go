package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Failure 失败响应结构
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Success 成功响应，fields 平铺在 success 字段旁
func Success(c *gin.Context, fields gin.H) {
	body := gin.H{}
	for key, value := range fields {
		body[key] = value
	}
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

// SoftFailure 业务软失败，HTTP 200 且 success=false
func SoftFailure(c *gin.Context, code, message string) {
	c.JSON(http.StatusOK, Failure{Success: false, Error: code, Message: message})
}

// Error 硬失败，HTTP 状态由错误码决定
func Error(c *gin.Context, code, message string) {
	c.JSON(StatusFor(code), Failure{Success: false, Error: code, Message: message})
}

// Abort 中间件中使用，写入错误并终止后续处理
func Abort(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(StatusFor(code), Failure{Success: false, Error: code, Message: message})
}
