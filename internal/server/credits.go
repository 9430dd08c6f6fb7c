package server

import (
	"errors"
	"net/http"

	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	"github.com/gin-gonic/gin"
)

// ListCredits returns the holder's grants plus the credit total still
// spendable right now.
func (s *Server) ListCredits(c *gin.Context) {
	holderID, ok := parseSnowflake(c.Query("holder_id"))
	if !ok {
		AbortWithError(c, entitlementdomain.ErrInvalidHolder)
		return
	}

	ctx := c.Request.Context()
	grants, err := s.entitlementSvc.ListByHolder(ctx, holderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	usable := 0
	for _, g := range grants {
		if g.Status == entitlementdomain.GrantStatusActive {
			usable += g.Remaining()
		}
	}

	next, err := s.entitlementSvc.UsableGrant(ctx, holderID)
	var nextGrant *grantResponse
	switch {
	case err == nil:
		resp := toGrantResponse(next)
		nextGrant = &resp
	case errors.Is(err, entitlementdomain.ErrNoUsableCredits):
	default:
		AbortWithError(c, err)
		return
	}

	items := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		items = append(items, toGrantResponse(g))
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"usable_credits": usable,
		"next_grant":     nextGrant,
		"grants":         items,
	}})
}
