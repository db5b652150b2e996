// Package mealgin exposes the attendance engine over gin.
package mealgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/adapters/gin/handlers"
	"github.com/PaulFidika/mealkit/core"
	jwtkit "github.com/PaulFidika/mealkit/jwt"
	"github.com/PaulFidika/mealkit/ratelimit"
)

// Options configures Register. Every field is optional.
type Options struct {
	Limiter  ratelimit.Limiter
	Language *LanguageConfig
	Log      logrus.FieldLogger
}

// Register mounts the engine's routes on r. All routes except /healthz need
// a bearer token verified by v.
func Register(r gin.IRouter, svc *core.Service, v *jwtkit.Verifier, opts Options) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	api := r.Group("", LanguageMiddleware(opts.Language), AuthRequired(v, opts.Log))
	api.POST("/attendance/scan", handlers.HandleAttendanceScanPOST(svc, opts.Limiter))
	api.GET("/attendance", handlers.HandleAttendanceGET(svc))
	api.POST("/credentials/challenge", handlers.HandleCredentialsChallengePOST(svc, opts.Limiter))
	api.POST("/credentials", handlers.HandleCredentialsPOST(svc, opts.Limiter))
	api.DELETE("/credentials", handlers.HandleCredentialsDELETE(svc))
	api.POST("/admin/attendance/manual", handlers.HandleAdminAttendanceManualPOST(svc, opts.Limiter))
	api.POST("/admin/service-points/:id/invalidate", handlers.HandleAdminServicePointInvalidatePOST(svc))
}
