package notification

import "go.uber.org/fx"

var Module = fx.Module("notification",
	fx.Provide(NewRouter),
	fx.Provide(func(r *Router) Notifier { return r }),
)
