package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
)

const defaultLineageDepth = 10

func referenceKey(c *gin.Context) (workflowdomain.Key, error) {
	refType, err := workflowdomain.ParseReferenceType(c.Param("type"))
	if err != nil {
		return workflowdomain.Key{}, err
	}
	key := workflowdomain.Key{Type: refType, ID: strings.TrimSpace(c.Param("id"))}
	if err := key.Validate(); err != nil {
		return workflowdomain.Key{}, err
	}
	return key, nil
}

func (s *Server) GetReference(c *gin.Context) {
	key, err := referenceKey(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ref, err := s.workflow.Get(c.Request.Context(), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ref})
}

// GetReferenceLineage walks the reference graph from one record, children
// by default. depth bounds the walk.
func (s *Server) GetReferenceLineage(c *gin.Context) {
	key, err := referenceKey(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	direction, err := workflowdomain.ParseDirection(c.Query("direction"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	depth, err := parseOptionalInt(c.Query("depth"))
	if err != nil {
		AbortWithError(c, newValidationError("depth", "invalid_depth", "invalid depth"))
		return
	}
	maxDepth := defaultLineageDepth
	if depth != nil && *depth > 0 {
		maxDepth = *depth
	}

	lineage, err := s.workflow.Lineage(c.Request.Context(), key, direction, maxDepth)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lineage})
}
