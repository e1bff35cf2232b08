package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/a3tai/mcp-invoice-reader/internal/health"
	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": s.opts.Name, "version": s.opts.Version, "status": "ok"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Health.Overview(c.Request.Context()))
}

func (s *Server) handleHealthComponent(c *gin.Context) {
	name := c.Param("component")
	switch name {
	case health.ComponentDB, health.ComponentS3, health.ComponentRedis:
		c.JSON(http.StatusOK, s.opts.Health.Check(c.Request.Context(), name))
	default:
		abort(c, http.StatusNotFound, "unknown component: "+name)
	}
}

func (s *Server) handleDebugExtractText(c *gin.Context) {
	if s.opts.Debug == nil {
		abort(c, http.StatusServiceUnavailable, "text acquisition not configured")
		return
	}
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	if invoice.DetectKind(up.Filename, up.ContentType) != invoice.KindPDF {
		abort(c, http.StatusUnprocessableEntity, "a PDF file is required")
		return
	}
	c.JSON(http.StatusOK, s.opts.Debug.Compare(c.Request.Context(), up.Data))
}
