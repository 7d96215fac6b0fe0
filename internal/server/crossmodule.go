package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

type matchBillRequest struct {
	POID  string `json:"poId"`
	GRNID string `json:"grnId"`
}

type processPaymentRequest struct {
	modulesdomain.Payment
	BillIDs []string `json:"billIds"`
}

// LinkGRN records a goods receipt against its purchase order. The body is
// the GRN; an existing GRN id with an empty body links the stored record.
func (s *Server) LinkGRN(c *gin.Context) {
	var grn modulesdomain.GoodsReceiptNote
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&grn); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	grn.ID = strings.TrimSpace(c.Param("id"))
	poID := firstNonEmpty(c.Query("poId"), grn.POID)

	result, err := s.crossmodule.LinkGRNToPO(c.Request.Context(), grn, poID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) MatchBill(c *gin.Context) {
	var req matchBillRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	outcome, err := s.crossmodule.ProcessThreeWayMatching(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(req.POID),
		strings.TrimSpace(req.GRNID),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

// ProcessPayment applies a payment over the listed bills. Per-bill failures
// come back inside a 200 response; a payment that applied to no bill is a
// 422 that still carries the result.
func (s *Server) ProcessPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	payment := req.Payment
	payment.ID = strings.TrimSpace(c.Param("id"))

	result, err := s.crossmodule.ProcessPayment(c.Request.Context(), payment, req.BillIDs)
	if err != nil {
		if result != nil && errors.Is(err, crossdomain.ErrNothingApplied) {
			_ = c.Error(err)
			_, payload := mapError(err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"data": result, "error": payload})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) Search(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	params := crossdomain.SearchParams{
		Query:    strings.TrimSpace(c.Query("q")),
		Modules:  splitList(c.QueryArray("module")),
		VendorID: strings.TrimSpace(c.Query("vendorId")),
		Status:   strings.TrimSpace(c.Query("status")),
		Limit:    limit,
	}

	result, err := s.crossmodule.SearchAcrossModules(c.Request.Context(), params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetVendorAggregate(c *gin.Context) {
	data, err := s.crossmodule.GetAggregatedVendorData(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) GetDashboardMetrics(c *gin.Context) {
	metrics, err := s.crossmodule.GetDashboardMetrics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
