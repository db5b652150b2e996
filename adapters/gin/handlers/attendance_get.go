package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/reject"
)

// HandleAttendanceGET lists one day of records. ?date=YYYY-MM-DD is
// required; ?identity defaults to the caller.
func HandleAttendanceGET(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		date, err := time.Parse(time.DateOnly, c.Query("date"))
		if err != nil {
			ginutil.Reject(c, reject.New(reject.MalformedPayload, "field", "date"))
			return
		}
		recs, err := svc.Attendance(c.Request.Context(), p, c.Query("identity"), date)
		if err != nil {
			ginutil.Reject(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": recs, "date": date.Format(time.DateOnly)})
	}
}
