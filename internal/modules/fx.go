package modules

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/config"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"github.com/smallbiznis/procurelink/internal/modules/memory"
	"github.com/smallbiznis/procurelink/internal/modules/restclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("modules",
	fx.Provide(NewRegistry),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
}

// NewRegistry selects the module backend. The memory backend is seeded with
// fixtures outside production so the engine has records to act on.
func NewRegistry(p Params) (*modulesdomain.Registry, error) {
	log := p.Log.Named("modules")

	switch p.Config.Modules.Backend {
	case config.ModulesBackendREST:
		client, err := restclient.NewClient(p.Config.Modules.BaseURL, p.Config.Modules.Timeout, p.Log)
		if err != nil {
			return nil, err
		}
		log.Info("module backend selected",
			zap.String("backend", config.ModulesBackendREST),
			zap.String("base_url", p.Config.Modules.BaseURL),
		)
		return client.Registry(), nil
	default:
		stores := memory.NewStores(p.GenID, p.Clock)
		if !p.Config.IsProduction() {
			stores.SeedFixtures(p.Clock.Now())
		}
		log.Info("module backend selected", zap.String("backend", config.ModulesBackendMemory))
		return stores.Registry(), nil
	}
}
