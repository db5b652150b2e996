package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/ratelimit"
)

func HandleCredentialsChallengePOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketChallenge) {
			ginutil.TooMany(c)
			return
		}
		ch, err := svc.BeginAssertion(c.Request.Context(), p)
		if err != nil {
			ginutil.Reject(c, err)
			return
		}
		c.JSON(http.StatusOK, ch)
	}
}
