package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
)

// HandleCredentialsDELETE revokes every credential of ?identity (default:
// the caller). An optional ?reason is recorded with the status change.
func HandleCredentialsDELETE(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		identity := strings.TrimSpace(c.Query("identity"))
		if identity == "" {
			identity = p.ID
		}
		if err := svc.Revoke(c.Request.Context(), p, identity, strings.TrimSpace(c.Query("reason"))); err != nil {
			ginutil.Reject(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
