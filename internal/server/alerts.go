package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
)

func (s *Server) ListAlerts(c *gin.Context) {
	var filter alertdomain.Filter

	if raw := c.Query("severity"); raw != "" {
		severity, err := alertdomain.ParseSeverity(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.MinSeverity = severity
	}
	for _, raw := range splitList(c.QueryArray("type")) {
		alertType, err := alertdomain.ParseAlertType(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.Types = append(filter.Types, alertType)
	}
	limit, err := parseLimit(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filter.Limit = limit

	alerts, err := s.alerts.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if alerts == nil {
		alerts = []alertdomain.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}
