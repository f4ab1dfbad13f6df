package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab-service/internal/broadcast"
	"github.com/gogotex/gogotex/backend/collab-service/internal/docsync"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/service"
	"github.com/gogotex/gogotex/backend/collab-service/internal/protocol"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/middleware"
)

// RegisterDocumentRoutes mounts document CRUD and version history under
// /api/documents. r must already run the auth middleware. A revert made here
// or a save is published to live room members through pub when it is non-nil.
func RegisterDocumentRoutes(r gin.IRouter, svc *service.Service, pub docsync.Publisher) {
	g := r.Group("/api/documents")

	g.GET("", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		list, err := svc.List(c.Request.Context(), user)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			out = append(out, gin.H{"id": d.ID, "title": d.Title, "owner": d.Owner, "lastModified": d.LastModified})
		}
		c.JSON(http.StatusOK, gin.H{"documents": out})
	})

	g.POST("", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			Title string `json:"title"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := svc.Create(c.Request.Context(), user, req.Title)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	})

	g.GET("/:id", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		d, err := svc.Authorize(c.Request.Context(), c.Param("id"), user)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	// PUT saves the full body as the next version and pushes it to the room
	g.PUT("/:id", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			Content *string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}
		id := c.Param("id")
		d, v, err := svc.Save(c.Request.Context(), id, user, *req.Content)
		if err != nil {
			writeError(c, err)
			return
		}
		if pub != nil {
			pub.Publish(id, "", broadcast.Message{
				Kind:    broadcast.KindEdit,
				Frame:   protocol.Encode(protocol.Edit(id, d.Content)),
				Content: d.Content,
			})
		}
		c.JSON(http.StatusOK, gin.H{"document": d, "version": v})
	})

	g.DELETE("/:id", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), c.Param("id"), user); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/:id/collaborators", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			UserID string `json:"userId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := svc.AddCollaborator(c.Request.Context(), c.Param("id"), user, req.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	g.GET("/:id/versions", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		limit := 0
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		versions, err := svc.ListVersions(c.Request.Context(), c.Param("id"), user, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": versions})
	})

	g.GET("/:id/versions/:version", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		v, ok := versionParam(c)
		if !ok {
			return
		}
		snap, err := svc.GetVersion(c.Request.Context(), c.Param("id"), user, v)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	g.GET("/:id/versions/:version/export", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		v, ok := versionParam(c)
		if !ok {
			return
		}
		url, err := svc.ExportURL(c.Request.Context(), c.Param("id"), user, v)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	})

	g.POST("/:id/revert", func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			Version int `json:"version" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "version must be >= 1"})
			return
		}
		id := c.Param("id")
		d, err := svc.Revert(c.Request.Context(), id, user, req.Version)
		if err != nil {
			writeError(c, err)
			return
		}
		if pub != nil {
			docsync.PublishRevert(pub, id, req.Version, d.Content)
		}
		c.JSON(http.StatusOK, gin.H{"document": d})
	})
}

func requireUser(c *gin.Context) (string, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return id.ID, true
}

func versionParam(c *gin.Context) (int, bool) {
	v, err := strconv.Atoi(c.Param("version"))
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
		return 0, false
	}
	return v, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, document.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, service.ErrExportUnavailable):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrPersistence):
		logger.Errorf("documents: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		logger.Errorf("documents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
