package api

import (
	"errors"
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/failover"
)

// moveRequest is the body of POST /api/v1/moves. An empty subdomain list
// moves everything on the source host except the bootstrap names.
type moveRequest struct {
	From       string   `json:"from"`
	To         string   `json:"to" binding:"required"`
	Subdomains []string `json:"subdomains"`
}

// GET /api/v1/status
func (s *server) getStatus(c *gin.Context) {
	st := s.ctl.Status()
	if c.Query("format") == "text" {
		c.String(http.StatusOK, failover.FormatStatus(st))
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /api/v1/hosts
func (s *server) listHosts(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Hosts())
}

// GET /api/v1/hosts/:identity/subdomains
func (s *server) listHostSubdomains(c *gin.Context) {
	subs, err := s.ctl.SubdomainsOfHost(c.Param("identity"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

// GET /api/v1/subdomains?address=
func (s *server) listSubdomains(c *gin.Context) {
	address := c.Query("address")
	if _, err := netip.ParseAddr(address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'address' must be an IP address"})
		return
	}
	c.JSON(http.StatusOK, s.ctl.SubdomainsOnHost(address))
}

// POST /api/v1/moves
func (s *server) createMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Subdomains) == 0 && req.From == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either 'from' or 'subdomains' is required"})
		return
	}

	if err := s.ctl.MoveSubdomains(c.Request.Context(), req.From, req.To, sets.New(req.Subdomains...)); err != nil {
		s.log.Error(err, "move failed", "from", req.From, "to", req.To)
		abortWithError(c, err)
		return
	}

	subs, err := s.ctl.SubdomainsOfHost(req.To)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"to": req.To, "subdomains": subs})
}

// POST /api/v1/refresh
func (s *server) refresh(c *gin.Context) {
	if err := s.ctl.Refresh(c.Request.Context()); err != nil {
		s.log.Error(err, "manual refresh failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "status": s.ctl.Status()})
		return
	}
	c.JSON(http.StatusOK, s.ctl.Status())
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, failover.ErrUnknownHost):
		return http.StatusNotFound
	case errors.Is(err, dns.ErrNoMatchingNames):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dns.ErrProviderUpdate), errors.Is(err, dns.ErrProviderRefresh):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
