package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab-service/internal/auth"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
)

const (
	IdentityKey = "identity"
	ClaimsKey   = "claims"
)

// AuthMiddleware returns a Gin middleware that authenticates the request
// credential through the gate. On success the Identity and raw claims are
// stored on the context.
func AuthMiddleware(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.CredentialFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authMessage(err)})
			return
		}
		id, claims, err := gate.AuthenticateClaims(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authMessage(err)})
			return
		}
		c.Set(IdentityKey, id)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok && id.ID != ""
}

func authMessage(err error) string {
	if errors.Is(err, auth.ErrMissingCredential) {
		return "missing credential"
	}
	return "invalid token"
}
