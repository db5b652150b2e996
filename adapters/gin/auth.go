package mealgin

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/adapters/ginutil"
	"github.com/PaulFidika/mealkit/core"
	jwtkit "github.com/PaulFidika/mealkit/jwt"
)

// AuthRequired verifies the bearer token and records the caller as a
// core.Principal. Tokens without a known role are refused.
func AuthRequired(v *jwtkit.Verifier, log logrus.FieldLogger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		claims, err := v.Verify(c.GetHeader("Authorization"))
		if err != nil {
			log.WithError(err).Debug("bearer token rejected")
			ginutil.Unauthorized(c, "invalid_token")
			return
		}
		role, err := core.ParseRole(claims.Role)
		if err != nil {
			ginutil.Unauthorized(c, "unknown_role")
			return
		}
		ginutil.SetPrincipal(c, core.Principal{ID: claims.Subject, Role: role})
		c.Next()
	}
}
