// Package ratelimit 提供进程级的调用限流。
package ratelimit

import (
	"context"

	"niloufer-chat-go/internal/config"

	"golang.org/x/time/rate"
)

// Limiter 在调用外部服务前获取许可，上下文取消时提前返回。
type Limiter interface {
	Acquire(ctx context.Context) error
}

type tokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewLimiter 按配置创建令牌桶限流器。
func NewLimiter(cfg config.RateLimitConfig) Limiter {
	return &tokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Acquire 阻塞直到拿到令牌或上下文取消。
func (l *tokenBucketLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// NoopLimiter 不做任何限流，测试用。
type NoopLimiter struct{}

func (NoopLimiter) Acquire(ctx context.Context) error { return nil }
