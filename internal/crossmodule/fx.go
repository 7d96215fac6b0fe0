package crossmodule

import (
	"github.com/smallbiznis/procurelink/internal/crossmodule/service"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	"go.uber.org/fx"
)

var Module = fx.Module("crossmodule.service",
	fx.Provide(func(b *eventbus.Bus) service.Publisher { return b }),
	fx.Provide(service.NewService),
)
