package controllers

import (
	"time"

	"github.com/google/wire"
)

// ProviderSet 暴露接入层构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(
	ProvideBaseHandler,
	NewMediaHandler,
)

// 写路径涉及对象前缀删除与事务提交，给较宽的预算；读路径只查单行加签名。
const (
	commandTimeout = 30 * time.Second
	queryTimeout   = 5 * time.Second
)

// ProvideBaseHandler 按默认超时策略装配基础 Handler。
func ProvideBaseHandler() *BaseHandler {
	return NewBaseHandler(HandlerTimeouts{
		Command: commandTimeout,
		Query:   queryTimeout,
	})
}
