package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	obscontext "github.com/smallbiznis/procurelink/internal/observability/context"
)

// ListApprovals returns pending approvals, optionally for one approver.
func (s *Server) ListApprovals(c *gin.Context) {
	approvals, err := s.approvals.ListPending(c.Request.Context(), strings.TrimSpace(c.Query("approver")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": approvals})
}

func (s *Server) GetApproval(c *gin.Context) {
	approval, err := s.approvals.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": approval})
}

// DecideApproval closes an approval. The decider defaults to the actor
// header of the request.
func (s *Server) DecideApproval(c *gin.Context) {
	var req approvaldomain.Decision
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.DecidedBy = strings.TrimSpace(req.DecidedBy)
	if req.DecidedBy == "" {
		if _, actorID := obscontext.ActorFromContext(c.Request.Context()); actorID != "" {
			req.DecidedBy = actorID
		}
	}

	approval, err := s.approvals.Decide(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": approval})
}
