package ratelimit

import "go.uber.org/fx"

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
	fx.Provide(func(l *Limiter) *Locker { return l.Locker() }),
)
