package server

import (
	"net/http"

	referraldomain "github.com/applygate/applygate/internal/referral/domain"
	"github.com/gin-gonic/gin"
)

type createReferralRequest struct {
	ReferrerID string `json:"referrer_id"`
	ReferredID string `json:"referred_id"`
}

type referralEdgeResponse struct {
	ID          string `json:"id"`
	ReferrerID  string `json:"referrer_id"`
	ReferredID  string `json:"referred_id"`
	Code        string `json:"code"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toReferralEdgeResponse(e referraldomain.ReferralEdge) referralEdgeResponse {
	resp := referralEdgeResponse{
		ID:         e.ID.String(),
		ReferrerID: e.ReferrerID.String(),
		ReferredID: e.ReferredID.String(),
		Code:       e.Code,
		Status:     string(e.Status),
		CreatedAt:  e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if e.CompletedAt != nil {
		resp.CompletedAt = e.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func (s *Server) CreateReferral(c *gin.Context) {
	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	referrerID, ok := parseSnowflake(req.ReferrerID)
	if !ok {
		AbortWithError(c, referraldomain.ErrInvalidReferrer)
		return
	}
	referredID, ok := parseSnowflake(req.ReferredID)
	if !ok {
		AbortWithError(c, referraldomain.ErrInvalidReferred)
		return
	}

	edge, err := s.referralSvc.CreateEdge(c.Request.Context(), referraldomain.CreateEdgeRequest{
		ReferrerID: referrerID,
		ReferredID: referredID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toReferralEdgeResponse(edge)})
}

func (s *Server) ReferralBalance(c *gin.Context) {
	holderID, ok := parseSnowflake(c.Query("holder_id"))
	if !ok {
		AbortWithError(c, referraldomain.ErrInvalidReferred)
		return
	}

	points, err := s.referralSvc.Balance(c.Request.Context(), holderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"holder_id": holderID.String(),
		"points":    points,
	}})
}
