package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/ratelimit"
	"github.com/PaulFidika/mealkit/reject"
)

type enrollBody struct {
	Identity     string `json:"identity"`
	CredentialID string `json:"credential_id" binding:"required"`
	PublicKey    string `json:"public_key" binding:"required"`
	DeviceInfo   string `json:"device_info"`
}

func HandleCredentialsPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketEnroll) {
			ginutil.TooMany(c)
			return
		}
		var body enrollBody
		if err := c.ShouldBindJSON(&body); err != nil {
			ginutil.Reject(c, reject.Wrap(reject.MalformedPayload, err, "field", "body"))
			return
		}
		if body.Identity == "" {
			body.Identity = p.ID
		}
		cred, err := svc.Enroll(c.Request.Context(), p, credential.EnrollRequest{
			IdentityID:   body.Identity,
			CredentialID: body.CredentialID,
			PublicKey:    body.PublicKey,
			DeviceInfo:   body.DeviceInfo,
		})
		if err != nil {
			ginutil.Reject(c, err)
			return
		}
		c.JSON(http.StatusCreated, cred)
	}
}
