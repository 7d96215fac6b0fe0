package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/alert"
	"github.com/smallbiznis/procurelink/internal/approval"
	"github.com/smallbiznis/procurelink/internal/automation"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	"github.com/smallbiznis/procurelink/internal/eventbus/journal"
	"github.com/smallbiznis/procurelink/internal/migration"
	"github.com/smallbiznis/procurelink/internal/modules"
	"github.com/smallbiznis/procurelink/internal/notification"
	"github.com/smallbiznis/procurelink/internal/observability"
	"github.com/smallbiznis/procurelink/internal/providers"
	"github.com/smallbiznis/procurelink/internal/ratelimit"
	"github.com/smallbiznis/procurelink/internal/scheduler"
	"github.com/smallbiznis/procurelink/pkg/db"
	"go.uber.org/fx"
)

// The dispatcher runs the bus, the rule engine and the scheduled jobs
// without the operator API.
func main() {
	app := fx.New(
		fx.WithLogger(observability.FxLogger),

		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,

		modules.Module,
		journal.Module,
		eventbus.Module,
		approval.Module,
		automation.Module,
		providers.Module,
		notification.Module,
		alert.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
