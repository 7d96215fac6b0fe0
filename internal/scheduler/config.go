package scheduler

import (
	"time"

	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/smallbiznis/procurelink/internal/notification"
)

// Config controls scheduler intervals and which jobs run.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// LockTTL bounds a job lease when instances share a locker.
	LockTTL time.Duration
	// EnabledJobs empty means every job runs.
	EnabledJobs       []string
	DigestMinSeverity alertdomain.Severity
	DigestChannel     string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		JobTimeout:        30 * time.Second,
		LockTTL:           2 * time.Minute,
		DigestMinSeverity: alertdomain.SeverityHigh,
		DigestChannel:     notification.ChannelLog,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := Config{
		RunInterval: cfg.ApprovalSweepInterval,
		EnabledJobs: cfg.SchedulerJobs,
		LockTTL:     cfg.RateLimit.JobLockTTL,
	}
	if cfg.Slack.WebhookURL != "" {
		out.DigestChannel = notification.ChannelSlack
	}
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = max(defaults.LockTTL, c.JobTimeout)
	}
	if c.DigestMinSeverity.Rank() == 0 {
		c.DigestMinSeverity = defaults.DigestMinSeverity
	}
	if c.DigestChannel == "" {
		c.DigestChannel = defaults.DigestChannel
	}
	return c
}
