package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/authorization"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/config"
	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/smallbiznis/procurelink/internal/observability"
	obsmiddleware "github.com/smallbiznis/procurelink/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	obstracing "github.com/smallbiznis/procurelink/internal/observability/tracing"
	"github.com/smallbiznis/procurelink/internal/ratelimit"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(func(b *eventbus.Bus) EventStream { return b }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// EventStream is the event bus as seen by the operator API.
type EventStream interface {
	Publish(ctx context.Context, event eventdomain.IntegrationEvent) (eventdomain.IntegrationEvent, error)
	Recent(limit int) []eventdomain.IntegrationEvent
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware("/health", obsCfg.MetricsPath))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(obsCfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	log         *zap.Logger
	engine      *gin.Engine
	cfg         config.Config
	events      EventStream
	automation  automationdomain.Service
	crossmodule crossdomain.Service
	alerts      alertdomain.Service
	workflow    workflowdomain.Service
	approvals   approvaldomain.Service
	authz       authorization.Service
	limiter     EventLimiter
}

// EventLimiter throttles event ingestion per producer.
type EventLimiter interface {
	AllowEvent(ctx context.Context, producer string) (*ratelimit.RateLimitResult, error)
}

type ServerParams struct {
	fx.In

	Log         *zap.Logger `optional:"true"`
	Gin         *gin.Engine
	Cfg         config.Config
	Events      EventStream
	Automation  automationdomain.Service
	Crossmodule crossdomain.Service
	Alerts      alertdomain.Service
	Workflow    workflowdomain.Service
	Approvals   approvaldomain.Service
	Authz       authorization.Service `optional:"true"`
	Limiter     *ratelimit.Limiter    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		log:         log.Named("http.server"),
		engine:      p.Gin,
		cfg:         p.Cfg,
		events:      p.Events,
		automation:  p.Automation,
		crossmodule: p.Crossmodule,
		alerts:      p.Alerts,
		workflow:    p.Workflow,
		approvals:   p.Approvals,
		authz:       p.Authz,
	}
	if p.Limiter.Enabled() {
		svc.limiter = p.Limiter
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.Authenticate())

	// -------- Events --------
	api.POST("/events", s.authorize(authorization.ObjectEvents, authorization.ActionPublish), s.limitEvents(), s.PublishEvent)
	api.GET("/events/recent", s.authorize(authorization.ObjectEvents, authorization.ActionView), s.ListRecentEvents)

	// -------- Automation rules --------
	api.GET("/rules", s.authorize(authorization.ObjectRules, authorization.ActionView), s.ListRules)
	api.POST("/rules", s.authorize(authorization.ObjectRules, authorization.ActionManage), s.CreateRule)
	api.GET("/rules/executions", s.authorize(authorization.ObjectRules, authorization.ActionView), s.ListRuleExecutions)
	api.GET("/rules/:id", s.authorize(authorization.ObjectRules, authorization.ActionView), s.GetRule)
	api.PATCH("/rules/:id", s.authorize(authorization.ObjectRules, authorization.ActionManage), s.UpdateRule)
	api.DELETE("/rules/:id", s.authorize(authorization.ObjectRules, authorization.ActionManage), s.DeleteRule)

	// -------- Cross-module operations --------
	api.POST("/grns/:id/link", s.authorize(authorization.ObjectCrossModule, authorization.ActionManage), s.LinkGRN)
	api.POST("/bills/:id/match", s.authorize(authorization.ObjectCrossModule, authorization.ActionManage), s.MatchBill)
	api.POST("/payments/:id/process", s.authorize(authorization.ObjectCrossModule, authorization.ActionManage), s.ProcessPayment)
	api.GET("/search", s.authorize(authorization.ObjectCrossModule, authorization.ActionView), s.Search)
	api.GET("/vendors/:id/aggregate", s.authorize(authorization.ObjectCrossModule, authorization.ActionView), s.GetVendorAggregate)
	api.GET("/dashboard/metrics", s.authorize(authorization.ObjectCrossModule, authorization.ActionView), s.GetDashboardMetrics)

	// -------- Alerts --------
	api.GET("/alerts", s.authorize(authorization.ObjectAlerts, authorization.ActionView), s.ListAlerts)

	// -------- Workflow references --------
	api.GET("/references/:type/:id", s.authorize(authorization.ObjectReferences, authorization.ActionView), s.GetReference)
	api.GET("/references/:type/:id/lineage", s.authorize(authorization.ObjectReferences, authorization.ActionView), s.GetReferenceLineage)

	// -------- Approvals --------
	api.GET("/approvals", s.authorize(authorization.ObjectApprovals, authorization.ActionView), s.ListApprovals)
	api.GET("/approvals/:id", s.authorize(authorization.ObjectApprovals, authorization.ActionView), s.GetApproval)
	api.POST("/approvals/:id/decision", s.authorize(authorization.ObjectApprovals, authorization.ActionDecide), s.DecideApproval)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
