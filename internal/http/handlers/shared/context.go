package shared

import (
	"strings"

	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/http/response"
	"github.com/lava-community/pwa-api/internal/service"

	"github.com/gin-gonic/gin"
)

// GetIdentity 读取鉴权中间件写入的身份，缺失时直接返回 401。
func GetIdentity(c *gin.Context) (service.Identity, bool) {
	userID := strings.TrimSpace(c.GetString(constants.ContextKeyUserID))
	if userID == "" {
		RespondError(c, response.CodeUnauthorized, "authentication required", nil)
		return service.Identity{}, false
	}
	return service.Identity{
		UserID: userID,
		Email:  c.GetString(constants.ContextKeyUserEmail),
	}, true
}
