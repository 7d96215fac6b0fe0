package providers

import (
	"github.com/smallbiznis/procurelink/internal/providers/email"
	"github.com/smallbiznis/procurelink/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
