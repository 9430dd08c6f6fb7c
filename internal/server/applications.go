package server

import (
	"net/http"

	applicationdomain "github.com/applygate/applygate/internal/application/domain"
	"github.com/gin-gonic/gin"
)

type submitApplicationRequest struct {
	HolderID string `json:"holder_id"`
	JobID    string `json:"job_id"`
}

type applicationResponse struct {
	ID        string `json:"id"`
	HolderID  string `json:"holder_id"`
	JobID     string `json:"job_id"`
	GrantID   string `json:"grant_id"`
	CreatedAt string `json:"created_at"`
}

func toApplicationResponse(a applicationdomain.Application) applicationResponse {
	return applicationResponse{
		ID:        a.ID.String(),
		HolderID:  a.HolderID.String(),
		JobID:     a.JobID.String(),
		GrantID:   a.GrantID.String(),
		CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) SubmitApplication(c *gin.Context) {
	var req submitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	holderID, ok := parseSnowflake(req.HolderID)
	if !ok {
		AbortWithError(c, applicationdomain.ErrInvalidHolder)
		return
	}
	jobID, ok := parseSnowflake(req.JobID)
	if !ok {
		AbortWithError(c, applicationdomain.ErrInvalidJob)
		return
	}

	app, err := s.applicationSvc.Submit(c.Request.Context(), applicationdomain.SubmitRequest{
		HolderID: holderID,
		JobID:    jobID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toApplicationResponse(app)})
}

func (s *Server) ListApplications(c *gin.Context) {
	holderID, ok := parseSnowflake(c.Query("holder_id"))
	if !ok {
		AbortWithError(c, applicationdomain.ErrInvalidHolder)
		return
	}

	apps, err := s.applicationSvc.ListByHolder(c.Request.Context(), holderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		items = append(items, toApplicationResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
