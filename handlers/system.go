package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab-service/internal/users"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/middleware"
)

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// RegisterHealth mounts /health (liveness) and /ready. /ready returns 200 only
// when every probe succeeds.
func RegisterHealth(r gin.IRouter, started time.Time, probes map[string]Probe) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	names := make([]string, 0, len(probes))
	for n := range probes {
		names = append(names, n)
	}
	sort.Strings(names)

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		for _, n := range names {
			err := probes[n](ctx)
			deps[n] = err == nil
			if err != nil {
				ready = false
				logger.Warnf("readiness: %s: %v", n, err)
			}
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(started).String()})
	})
}

// RegisterMe mounts GET /me on an authenticated group. The user record is
// upserted from the credential's identity.
func RegisterMe(rg gin.IRouter, svc *users.Service) {
	rg.GET("/me", func(c *gin.Context) {
		id, ok := middleware.IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		u, err := svc.UpsertIdentity(c.Request.Context(), id)
		if err != nil {
			logger.Errorf("me: upsert user %s: %v", id.ID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	})
}
