package workflow

import (
	"context"

	"github.com/smallbiznis/procurelink/internal/migration"
	"github.com/smallbiznis/procurelink/internal/workflow/repository"
	"github.com/smallbiznis/procurelink/internal/workflow/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("workflow.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
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
