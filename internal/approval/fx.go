package approval

import (
	"context"

	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/approval/repository"
	"github.com/smallbiznis/procurelink/internal/approval/service"
	"github.com/smallbiznis/procurelink/internal/migration"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("approval.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) approvaldomain.Service { return s }),
	fx.Invoke(registerMigrations),
)

func registerMigrations(lc fx.Lifecycle, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if migration.Managed(db) {
				return nil
			}
			return repository.AutoMigrate(ctx, db)
		},
	})
}
