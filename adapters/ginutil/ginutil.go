// Package ginutil holds the small helpers every mealkit gin handler shares:
// principal lookup, rate limiting and error bodies.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/lang"
	"github.com/PaulFidika/mealkit/ratelimit"
	"github.com/PaulFidika/mealkit/reject"
)

const principalKey = "mealkit.principal"

// RateLimiter is the limiter handlers consult. A nil limiter allows all.
type RateLimiter = ratelimit.Limiter

// SetPrincipal records the authenticated caller on c.
func SetPrincipal(c *gin.Context, p core.Principal) { c.Set(principalKey, p) }

// Principal returns the caller set by the auth middleware.
func Principal(c *gin.Context) (core.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return core.Principal{}, false
	}
	p, ok := v.(core.Principal)
	return p, ok && p.ID != ""
}

// AllowNamed spends one event from bucket for the caller, keyed by principal
// when authenticated and by client IP otherwise. Limiter faults fail open so
// a cache outage never blocks a meal.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := "ip:" + c.ClientIP()
	if p, ok := Principal(c); ok {
		key = "id:" + p.ID
	}
	ok, err := rl.Allow(c.Request.Context(), bucket, key)
	if err != nil {
		logrus.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

// Language is the request language set by the language middleware.
func Language(c *gin.Context) string {
	if l, ok := lang.FromContext(c.Request.Context()); ok {
		return l
	}
	return lang.Default
}

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func Unauthorized(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func ServerErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}

// Status maps a rejection reason to an HTTP status. Scan-outcome rejections
// are 422: the request was well formed and was evaluated.
func Status(r reject.Reason) int {
	switch r {
	case reject.MalformedPayload:
		return http.StatusBadRequest
	case reject.Forbidden:
		return http.StatusForbidden
	case reject.CredentialNotFound:
		return http.StatusNotFound
	case reject.AlreadyEnrolled, reject.DuplicateScan:
		return http.StatusConflict
	case reject.StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// ErrorBody is the JSON shape of a rejection outside the scan endpoint.
type ErrorBody struct {
	Error     reject.Reason  `json:"error"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// Reject writes err as a rejection. Errors that are not rejections are
// reported as storage_unavailable without their cause.
func Reject(c *gin.Context, err error) {
	e, ok := reject.As(err)
	if !ok {
		e = reject.Unavailable(err)
	}
	c.AbortWithStatusJSON(Status(e.Reason), ErrorBody{
		Error:     e.Reason,
		Message:   lang.Message(Language(c), e.Reason),
		Detail:    e.Detail,
		Retryable: reject.Retryable(e),
	})
}
