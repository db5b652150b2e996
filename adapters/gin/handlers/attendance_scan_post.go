package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/lang"
	"github.com/PaulFidika/mealkit/ratelimit"
	"github.com/PaulFidika/mealkit/reject"
)

type scanReply struct {
	core.ScanResponse
	Message string `json:"message,omitempty"`
}

// HandleAttendanceScanPOST answers every evaluated scan with a ScanResponse
// body; the status is 200 on acceptance and the reason's status otherwise.
func HandleAttendanceScanPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketScan) {
			ginutil.TooMany(c)
			return
		}
		var req core.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.Reject(c, reject.Wrap(reject.MalformedPayload, err, "field", "body"))
			return
		}
		rec, err := svc.ScanAs(c.Request.Context(), p, req)
		resp := core.Respond(rec, err)
		if resp.Accepted {
			c.JSON(http.StatusOK, scanReply{ScanResponse: resp})
			return
		}
		c.JSON(ginutil.Status(resp.Reason), scanReply{
			ScanResponse: resp,
			Message:      lang.Message(ginutil.Language(c), resp.Reason),
		})
	}
}
