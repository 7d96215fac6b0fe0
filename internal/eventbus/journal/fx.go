package journal

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	"github.com/smallbiznis/procurelink/internal/migration"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("eventbus.journal",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	DB        *gorm.DB `optional:"true"`
}

// New selects the journal sink from EVENTBUS_JOURNAL. A nil journal means
// dispatched events live only in logs and the in-memory recent ring.
func New(p Params) (eventbus.Journal, error) {
	log := p.Log.Named("journal")

	switch p.Config.EventBus.Journal {
	case config.JournalDB:
		if p.DB == nil {
			log.Warn("db journal requested without a database, journaling disabled")
			return nil, nil
		}
		j := NewGormJournal(p.DB)
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if migration.Managed(p.DB) {
					return nil
				}
				return j.Migrate(ctx)
			},
		})
		log.Info("journaling dispatched events", zap.String("sink", config.JournalDB))
		return j, nil
	case config.JournalRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     p.Config.Redis.Addr,
			Password: p.Config.Redis.Password,
			DB:       p.Config.Redis.DB,
		})
		j := NewRedisJournal(client, p.Config.Redis.Stream)
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return j.Close()
			},
		})
		log.Info("journaling dispatched events",
			zap.String("sink", config.JournalRedis),
			zap.String("stream", p.Config.Redis.Stream),
		)
		return j, nil
	default:
		return nil, nil
	}
}
