package server

import (
	"net/http"

	creditpackagedomain "github.com/applygate/applygate/internal/creditpackage/domain"
	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	paymentdomain "github.com/applygate/applygate/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	Amount    int64  `json:"amount"`
	HolderID  string `json:"holder_id"`
	PackageID string `json:"package_id"`
}

type grantResponse struct {
	ID            string `json:"id"`
	HolderID      string `json:"holder_id"`
	PackageID     string `json:"package_id"`
	TotalCredits  int    `json:"total_credits"`
	UsedCredits   int    `json:"used_credits"`
	Remaining     int    `json:"remaining_credits"`
	Status        string `json:"status"`
	IssuedAt      string `json:"issued_at"`
	ExpiresAt     string `json:"expires_at"`
	SourceOrderID string `json:"source_order_id"`
}

func toGrantResponse(g entitlementdomain.Grant) grantResponse {
	return grantResponse{
		ID:            g.ID.String(),
		HolderID:      g.HolderID.String(),
		PackageID:     g.PackageID.String(),
		TotalCredits:  g.TotalCredits,
		UsedCredits:   g.UsedCredits,
		Remaining:     g.Remaining(),
		Status:        string(g.Status),
		IssuedAt:      g.IssuedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:     g.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		SourceOrderID: g.SourceOrderID,
	}
}

// VerifyPayment confirms a provider payment and converts it into a credit
// grant. Replaying the same order returns the grant it already produced.
func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	holderID, ok := parseSnowflake(req.HolderID)
	if !ok {
		AbortWithError(c, paymentdomain.ErrInvalidHolder)
		return
	}
	packageID, ok := parseSnowflake(req.PackageID)
	if !ok {
		AbortWithError(c, entitlementdomain.ErrInvalidPackage)
		return
	}

	ctx := c.Request.Context()
	allowed, err := s.verifyLimiter.AllowVerify(ctx, holderID)
	if err != nil {
		// Fail open, but a redis outage should be visible.
		s.log.Warn("verify rate limit check failed",
			zap.String("holder_id", holderID.String()),
			zap.Error(err),
		)
	} else if !allowed {
		AbortWithError(c, ErrRateLimited)
		return
	}

	verified, err := s.paymentSvc.Verify(ctx, paymentdomain.VerifyRequest{
		OrderID:       req.OrderID,
		PaymentID:     req.PaymentID,
		Signature:     req.Signature,
		ClaimedAmount: req.Amount,
		HolderID:      holderID,
		PackageID:     packageID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pkg, err := s.packageSvc.GetByID(ctx, creditpackagedomain.GetPackageRequest{ID: verified.PackageID.String()})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	grant, err := s.entitlementSvc.Issue(ctx, entitlementdomain.IssueGrantRequest{
		HolderID:      verified.HolderID,
		PackageID:     verified.PackageID,
		CreditCount:   pkg.CreditCount,
		ValidityDays:  pkg.ValidityDays,
		SourceOrderID: verified.ProviderOrderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toGrantResponse(grant)})
}
