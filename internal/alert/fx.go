package alert

import (
	"github.com/smallbiznis/procurelink/internal/alert/service"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(func(engine automationdomain.Service) service.ExecutionSource { return engine }),
	fx.Provide(service.NewService),
)
