package server

import (
	"net/http"
	"strings"

	creditpackagedomain "github.com/applygate/applygate/internal/creditpackage/domain"
	"github.com/gin-gonic/gin"
)

type createPackageRequest struct {
	Name            string `json:"name"`
	CreditCount     int    `json:"credit_count"`
	PriceMinorUnits int64  `json:"price_minor_units"`
	ValidityDays    int    `json:"validity_days"`
}

func (s *Server) CreatePackage(c *gin.Context) {
	var req createPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pkg, err := s.packageSvc.Create(c.Request.Context(), creditpackagedomain.CreatePackageRequest{
		Name:            strings.TrimSpace(req.Name),
		CreditCount:     req.CreditCount,
		PriceMinorUnits: req.PriceMinorUnits,
		ValidityDays:    req.ValidityDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pkg})
}

func (s *Server) ListPackages(c *gin.Context) {
	activeOnly := strings.EqualFold(c.DefaultQuery("active", "true"), "true")

	pkgs, err := s.packageSvc.List(c.Request.Context(), creditpackagedomain.ListPackageRequest{
		ActiveOnly: activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pkgs})
}

func (s *Server) GetPackage(c *gin.Context) {
	pkg, err := s.packageSvc.GetByID(c.Request.Context(), creditpackagedomain.GetPackageRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pkg})
}

func (s *Server) DeactivatePackage(c *gin.Context) {
	if err := s.packageSvc.Deactivate(c.Request.Context(), creditpackagedomain.DeactivatePackageRequest{
		ID: c.Param("id"),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deactivated": true}})
}
