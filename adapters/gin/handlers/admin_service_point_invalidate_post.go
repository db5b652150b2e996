package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
)

// HandleAdminServicePointInvalidatePOST drops the cached record of :id after
// the administrative layer rotates its secret or edits it.
func HandleAdminServicePointInvalidatePOST(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		id := c.Param("id")
		if err := svc.InvalidateServicePoints(c.Request.Context(), p, id); err != nil {
			ginutil.Reject(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "service_point_id": id})
	}
}
