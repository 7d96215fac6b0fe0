package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/authorization"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

// validationSentinels map to 400 with the sentinel text as the error code.
var validationSentinels = []error{
	ErrInvalidRequest,
	crossdomain.ErrInvalidRequest,
	crossdomain.ErrNoBills,
	crossdomain.ErrInvalidAmount,
	crossdomain.ErrVendorMismatch,
	automationdomain.ErrInvalidRule,
	automationdomain.ErrInvalidAction,
	automationdomain.ErrUnknownActionType,
	eventdomain.ErrInvalidEventType,
	eventdomain.ErrMissingSourceModule,
	workflowdomain.ErrInvalidType,
	workflowdomain.ErrInvalidID,
	workflowdomain.ErrInvalidDirection,
	workflowdomain.ErrSelfLink,
	modulesdomain.ErrUnknownModule,
	modulesdomain.ErrInvalidStatus,
	modulesdomain.ErrInvalidRecord,
	approvaldomain.ErrInvalidID,
	approvaldomain.ErrApproverRequired,
	approvaldomain.ErrRecordRequired,
	alertdomain.ErrInvalidSeverity,
	alertdomain.ErrInvalidAlertType,
}

var conflictSentinels = []error{
	ErrConflict,
	automationdomain.ErrDuplicateRule,
	approvaldomain.ErrAlreadyDecided,
	workflowdomain.ErrCycle,
	workflowdomain.ErrCausalOrder,
	modulesdomain.ErrOverpayment,
	crossdomain.ErrBillSettled,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	// A batch that applied nothing wraps its per-bill causes; classify it
	// before those causes are matched.
	if errors.Is(err, crossdomain.ErrNothingApplied) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: detailMessage(err, "nothing applied"),
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel := matchSentinel(err, validationSentinels); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: detailMessage(err, validationErrorMessage(code)),
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case matchSentinel(err, conflictSentinels) != nil:
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: detailMessage(err, "conflict"),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: detailMessage(err, "not found"),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, eventbus.ErrBusClosed):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchSentinel(err error, sentinels []error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, automationdomain.ErrRuleNotFound),
		errors.Is(err, modulesdomain.ErrNotFound),
		errors.Is(err, workflowdomain.ErrNotFound),
		errors.Is(err, approvaldomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// detailMessage keeps wrapped context such as "po_9 not found" and falls
// back when the error is a bare sentinel.
func detailMessage(err error, fallback string) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" || !strings.ContainsAny(msg, " :") {
		return fallback
	}
	return msg
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "missing_source_module":
		return "sourceModule"
	case "invalid_payment_amount":
		return "amount"
	case "approver_required":
		return "approverId"
	case "record_required":
		return "recordId"
	case "no_bills":
		return "billIds"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "no_bills":
		return "no bills supplied"
	case "unknown_module":
		return "unknown module"
	default:
		return "invalid value"
	}
}
