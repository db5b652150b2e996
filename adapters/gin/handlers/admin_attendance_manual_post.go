package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/ratelimit"
	"github.com/PaulFidika/mealkit/reject"
)

type manualBody struct {
	Identity       string `json:"identity"`
	ServicePointID string `json:"service_point_id"`
	Date           string `json:"date"`
	MealSlot       string `json:"meal_slot"`
	Justification  string `json:"justification"`
}

func HandleAdminAttendanceManualPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := ginutil.Principal(c)
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketManual) {
			ginutil.TooMany(c)
			return
		}
		var body manualBody
		if err := c.ShouldBindJSON(&body); err != nil {
			ginutil.Reject(c, reject.Wrap(reject.MalformedPayload, err, "field", "body"))
			return
		}
		date, err := time.Parse(time.DateOnly, body.Date)
		if err != nil {
			ginutil.Reject(c, reject.New(reject.MalformedPayload, "field", "date"))
			return
		}
		rec, err := svc.RecordManual(c.Request.Context(), p, core.ManualRequest{
			IdentityID:     body.Identity,
			ServicePointID: body.ServicePointID,
			Date:           date,
			Slot:           mealwindow.Slot(body.MealSlot),
			Justification:  body.Justification,
		})
		if err != nil {
			ginutil.Reject(c, err)
			return
		}
		c.JSON(http.StatusCreated, core.Respond(rec, nil))
	}
}
