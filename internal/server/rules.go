package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
)

type createRuleRequest struct {
	ID               string                    `json:"id"`
	Name             string                    `json:"name"`
	Description      string                    `json:"description"`
	TriggerModule    string                    `json:"triggerModule"`
	TriggerCondition string                    `json:"triggerCondition"`
	Actions          []automationdomain.Action `json:"actions"`
	IsActive         *bool                     `json:"isActive"`
}

type updateRuleRequest struct {
	IsActive *bool `json:"isActive"`
}

func (s *Server) ListRules(c *gin.Context) {
	rules := s.automation.ListRules(c.Request.Context())

	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}
	module := strings.TrimSpace(c.Query("module"))

	out := make([]automationdomain.Rule, 0, len(rules))
	for _, rule := range rules {
		if active != nil && rule.IsActive != *active {
			continue
		}
		if module != "" && !strings.EqualFold(rule.TriggerModule, module) {
			continue
		}
		out = append(out, rule)
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}

// CreateRule registers a rule. Without an explicit id the rule is keyed by
// the slug of its name.
func (s *Server) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	name := strings.TrimSpace(req.Name)
	id := strings.TrimSpace(req.ID)
	if id == "" && name != "" {
		id = slug.Make(name)
	}
	if id == "" {
		AbortWithError(c, newValidationError("name", "invalid_name", "name is required"))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule, err := s.automation.AddRule(c.Request.Context(), automationdomain.Rule{
		ID:               id,
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		TriggerModule:    req.TriggerModule,
		TriggerCondition: req.TriggerCondition,
		Actions:          req.Actions,
		IsActive:         active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) GetRule(c *gin.Context) {
	rule, err := s.automation.GetRule(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) UpdateRule(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		AbortWithError(c, newValidationError("isActive", "invalid_is_active", "isActive is required"))
		return
	}

	rule, err := s.automation.SetActive(c.Request.Context(), strings.TrimSpace(c.Param("id")), *req.IsActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeleteRule(c *gin.Context) {
	if err := s.automation.RemoveRule(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListRuleExecutions(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), defaultListLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records := s.automation.Executions(limit)
	if records == nil {
		records = []automationdomain.ExecutionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
