package eventbus

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("eventbus",
	fx.Provide(ConfigFromApp),
	fx.Provide(New),
	fx.Invoke(RegisterLifecycle),
)

func RegisterLifecycle(lc fx.Lifecycle, bus *Bus) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bus.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return bus.Stop(ctx)
		},
	})
}
