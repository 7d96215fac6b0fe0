package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

const defaultRecentEvents = 50

type publishEventRequest struct {
	EventType        string         `json:"eventType"`
	SourceModule     string         `json:"sourceModule"`
	SourceRecordID   string         `json:"sourceRecordId"`
	SourceRecordType string         `json:"sourceRecordType"`
	EventData        map[string]any `json:"eventData"`
}

// PublishEvent accepts an event from a module and queues it. The response
// is 202 because subscribers and rules run on the dispatch loop.
func (s *Server) PublishEvent(c *gin.Context) {
	var req publishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event := eventdomain.IntegrationEvent{
		EventType:        eventdomain.EventType(strings.ToLower(strings.TrimSpace(req.EventType))),
		SourceModule:     strings.TrimSpace(req.SourceModule),
		SourceRecordID:   strings.TrimSpace(req.SourceRecordID),
		SourceRecordType: strings.TrimSpace(req.SourceRecordType),
		EventData:        req.EventData,
	}
	if err := event.Validate(); err != nil {
		AbortWithError(c, err)
		return
	}
	module, ok := modulesdomain.NormalizeModule(event.SourceModule)
	if !ok {
		AbortWithError(c, newValidationError("sourceModule", "unknown_module", "unknown module"))
		return
	}
	event.SourceModule = module
	c.Set("event_type", string(event.EventType))

	published, err := s.events.Publish(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": published})
}

func (s *Server) ListRecentEvents(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), defaultRecentEvents)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events := s.events.Recent(limit)
	if events == nil {
		events = []eventdomain.IntegrationEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}
