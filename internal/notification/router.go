package notification

import (
	"context"
	"fmt"

	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/smallbiznis/procurelink/internal/providers/email"
	"github.com/smallbiznis/procurelink/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Router delivers messages to the provider behind their channel. Every
// message is also logged.
type Router struct {
	log          *zap.Logger
	slack        slack.Provider
	email        email.Provider
	slackChannel string
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Slack  slack.Provider `optional:"true"`
	Email  email.Provider `optional:"true"`
}

func NewRouter(p Params) *Router {
	r := &Router{
		log:          p.Log.Named("notification"),
		slack:        p.Slack,
		email:        p.Email,
		slackChannel: p.Config.Slack.Channel,
	}
	if r.slack == nil {
		r.slack = &slack.NoOpProvider{}
	}
	if r.email == nil {
		r.email = &email.NoOpProvider{}
	}
	return r
}

func (r *Router) Notify(ctx context.Context, msg Message) error {
	channel := NormalizeChannel(msg.Channel)

	fields := []zap.Field{
		zap.String("channel", channel),
		zap.String("template_id", msg.TemplateID),
		zap.Strings("recipients", msg.Recipients),
		zap.String("subject", msg.Subject),
	}
	for k, v := range msg.Context {
		fields = append(fields, zap.String(k, v))
	}
	r.log.Info("notification", fields...)

	switch channel {
	case ChannelLog:
		return nil
	case ChannelSlack:
		target := r.slackChannel
		if len(msg.Recipients) > 0 {
			target = msg.Recipients[0]
		}
		return r.slack.PostMessage(ctx, target, fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Text))
	case ChannelEmail:
		return r.email.Send(ctx, msg.Recipients, msg.Subject, msg.Text)
	}
	return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
}
