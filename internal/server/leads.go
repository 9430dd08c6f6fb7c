package server

import (
	"net/http"

	leaddomain "github.com/applygate/applygate/internal/lead/domain"
	"github.com/gin-gonic/gin"
)

type assignLeadRequest struct {
	HolderID string `json:"holder_id"`
}

type leadAssignmentResponse struct {
	ID        string `json:"id"`
	LeadID    string `json:"lead_id"`
	HolderID  string `json:"holder_id"`
	GrantID   string `json:"grant_id"`
	CreatedAt string `json:"created_at"`
}

func toLeadAssignmentResponse(a leaddomain.LeadAssignment) leadAssignmentResponse {
	return leadAssignmentResponse{
		ID:        a.ID.String(),
		LeadID:    a.LeadID.String(),
		HolderID:  a.HolderID.String(),
		GrantID:   a.GrantID.String(),
		CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) AssignLead(c *gin.Context) {
	leadID, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, leaddomain.ErrInvalidLead)
		return
	}

	var req assignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	holderID, ok := parseSnowflake(req.HolderID)
	if !ok {
		AbortWithError(c, leaddomain.ErrInvalidHolder)
		return
	}

	assignment, err := s.leadSvc.Assign(c.Request.Context(), leaddomain.AssignRequest{
		LeadID:   leadID,
		HolderID: holderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toLeadAssignmentResponse(assignment)})
}

func (s *Server) ListLeadAssignments(c *gin.Context) {
	holderID, ok := parseSnowflake(c.Query("holder_id"))
	if !ok {
		AbortWithError(c, leaddomain.ErrInvalidHolder)
		return
	}

	assignments, err := s.leadSvc.ListByHolder(c.Request.Context(), holderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]leadAssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, toLeadAssignmentResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
