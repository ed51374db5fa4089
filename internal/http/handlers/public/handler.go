package public

import "github.com/lava-community/pwa-api/internal/provider"

// Handler 公开接口处理器入口
// 说明：访客记录、匹配以及登录用户的归因转化都挂在这里。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
