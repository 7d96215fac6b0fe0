package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/alert"
	"github.com/smallbiznis/procurelink/internal/approval"
	"github.com/smallbiznis/procurelink/internal/authorization"
	"github.com/smallbiznis/procurelink/internal/automation"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/smallbiznis/procurelink/internal/crossmodule"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	"github.com/smallbiznis/procurelink/internal/eventbus/journal"
	"github.com/smallbiznis/procurelink/internal/migration"
	"github.com/smallbiznis/procurelink/internal/modules"
	"github.com/smallbiznis/procurelink/internal/notification"
	"github.com/smallbiznis/procurelink/internal/observability"
	"github.com/smallbiznis/procurelink/internal/providers"
	"github.com/smallbiznis/procurelink/internal/ratelimit"
	"github.com/smallbiznis/procurelink/internal/scheduler"
	"github.com/smallbiznis/procurelink/internal/server"
	"github.com/smallbiznis/procurelink/internal/workflow"
	"github.com/smallbiznis/procurelink/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(observability.FxLogger),

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,

		// Integration engine
		modules.Module,
		workflow.Module,
		journal.Module,
		eventbus.Module,
		approval.Module,
		automation.Module,
		providers.Module,
		notification.Module,
		crossmodule.Module,
		alert.Module,
		scheduler.Module,

		// Operator API
		authorization.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
