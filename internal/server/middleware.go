package server

import (
	"crypto/subtle"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/procurelink/internal/authorization"
	obscontext "github.com/smallbiznis/procurelink/internal/observability/context"
	obslogger "github.com/smallbiznis/procurelink/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderAPIToken = "X-Api-Token"

	contextRoleKey = "actor_role"
)

type roleToken struct {
	role  string
	token string
}

func (s *Server) roleTokens() []roleToken {
	var out []roleToken
	for _, rt := range []roleToken{
		{role: authorization.RoleOperator, token: s.cfg.OperatorToken},
		{role: authorization.RoleViewer, token: s.cfg.ViewerToken},
		{role: authorization.RoleProducer, token: s.cfg.ProducerToken},
	} {
		if rt.token != "" {
			out = append(out, rt)
		}
	}
	return out
}

// Authenticate resolves the caller's role from its API token. With no
// tokens configured every caller is an operator, which is the dev default.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokens := s.roleTokens()
		if len(tokens) == 0 {
			s.setRole(c, authorization.RoleOperator)
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader(HeaderAPIToken))
		if presented == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}
		if presented == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := ""
		for _, rt := range tokens {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(rt.token)) == 1 {
				role = rt.role
				break
			}
		}
		if role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		s.setRole(c, role)
		c.Next()
	}
}

func (s *Server) setRole(c *gin.Context, role string) {
	c.Set(contextRoleKey, role)
	if _, actorID := obscontext.ActorFromContext(c.Request.Context()); actorID == "" {
		actorType := strings.TrimPrefix(role, "role:")
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actorType, "api"))
	}
}

// authorize checks the authenticated role against the policy for one
// object and action.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.TrimSpace(c.GetString(contextRoleKey))
		if role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authz == nil {
			if role != authorization.RoleOperator {
				AbortWithError(c, ErrForbidden)
				return
			}
			c.Next()
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// limitEvents applies the per-producer ingest bucket. The bucket is keyed
// by role and client address; a limiter failure lets the event through.
func (s *Server) limitEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		role, _ := c.Get(contextRoleKey)
		producer := fmt.Sprintf("%v:%s", role, c.ClientIP())

		res, err := s.limiter.AllowEvent(c.Request.Context(), producer)
		if err != nil {
			obslogger.WithContext(c.Request.Context(), s.log).Warn("event rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
