package server

import (
	"errors"
	"net/http"
	"strings"

	applicationdomain "github.com/applygate/applygate/internal/application/domain"
	creditpackagedomain "github.com/applygate/applygate/internal/creditpackage/domain"
	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	gatingdomain "github.com/applygate/applygate/internal/gating/domain"
	leaddomain "github.com/applygate/applygate/internal/lead/domain"
	paymentdomain "github.com/applygate/applygate/internal/payment/domain"
	referraldomain "github.com/applygate/applygate/internal/referral/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

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

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "validation error",
		}

	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    "invalid_signature",
			Message: "payment signature verification failed",
		}

	case errors.Is(err, entitlementdomain.ErrNoUsableCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Code:    "no_usable_credits",
			Message: "no usable credits",
		}

	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: "conflict",
		}

	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Code:    err.Error(),
			Message: "request cannot be processed",
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, referraldomain.ErrSelfReferral) {
		return true
	}
	// Domain validation sentinels share the invalid_ prefix.
	for _, target := range []error{
		paymentdomain.ErrInvalidOrder,
		paymentdomain.ErrInvalidPaymentID,
		paymentdomain.ErrInvalidHolder,
		paymentdomain.ErrAmountMismatch,
		paymentdomain.ErrPaymentNotCompleted,
		creditpackagedomain.ErrInvalidName,
		creditpackagedomain.ErrInvalidCreditCount,
		creditpackagedomain.ErrInvalidPrice,
		creditpackagedomain.ErrInvalidValidityDays,
		creditpackagedomain.ErrInvalidID,
		entitlementdomain.ErrInvalidHolder,
		entitlementdomain.ErrInvalidPackage,
		entitlementdomain.ErrInvalidCreditCount,
		entitlementdomain.ErrInvalidValidity,
		entitlementdomain.ErrInvalidSourceOrder,
		gatingdomain.ErrInvalidHolder,
		gatingdomain.ErrInvalidActionKey,
		applicationdomain.ErrInvalidHolder,
		applicationdomain.ErrInvalidJob,
		leaddomain.ErrInvalidHolder,
		leaddomain.ErrInvalidLead,
		referraldomain.ErrInvalidReferrer,
		referraldomain.ErrInvalidReferred,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return strings.HasPrefix(err.Error(), "invalid_")
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, gatingdomain.ErrAlreadyActioned),
		errors.Is(err, applicationdomain.ErrAlreadyApplied),
		errors.Is(err, leaddomain.ErrLeadAlreadyAssigned),
		errors.Is(err, referraldomain.ErrAlreadyReferred),
		errors.Is(err, entitlementdomain.ErrStaleGrant):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, creditpackagedomain.ErrPackageInactive),
		errors.Is(err, applicationdomain.ErrMissingDocuments):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, creditpackagedomain.ErrNotFound),
		errors.Is(err, entitlementdomain.ErrGrantNotFound),
		errors.Is(err, paymentdomain.ErrOrderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
