package mealgin

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/mealkit/lang"
)

// LanguageConfig controls how the response language is picked.
type LanguageConfig struct {
	Supported  []string
	Default    string
	QueryParam string
	CookieName string
}

func (c *LanguageConfig) defaulted() LanguageConfig {
	var out LanguageConfig
	if c != nil {
		out = *c
	}
	if len(out.Supported) == 0 {
		out.Supported = lang.Supported()
	}
	if strings.TrimSpace(out.Default) == "" {
		out.Default = lang.Default
	}
	if strings.TrimSpace(out.QueryParam) == "" {
		out.QueryParam = "lang"
	}
	if strings.TrimSpace(out.CookieName) == "" {
		out.CookieName = "lang"
	}
	return out
}

// baseLanguage reduces "hi-IN" or "en_GB" to the two-letter code, or "".
func baseLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_;"); i >= 0 {
		s = s[:i]
	}
	if len(s) != 2 || s[0] < 'a' || s[0] > 'z' || s[1] < 'a' || s[1] > 'z' {
		return ""
	}
	return s
}

// resolveLanguage prefers ?lang, then the lang cookie, then the first
// supported Accept-Language entry, then the default.
func resolveLanguage(c *gin.Context, cfg LanguageConfig) string {
	supported := make(map[string]bool, len(cfg.Supported))
	for _, s := range cfg.Supported {
		supported[baseLanguage(s)] = true
	}
	candidates := []string{c.Query(cfg.QueryParam)}
	if v, err := c.Cookie(cfg.CookieName); err == nil {
		candidates = append(candidates, v)
	}
	candidates = append(candidates, strings.Split(c.GetHeader("Accept-Language"), ",")...)
	for _, cand := range candidates {
		if l := baseLanguage(cand); l != "" && supported[l] {
			return l
		}
	}
	if l := baseLanguage(cfg.Default); supported[l] {
		return l
	}
	return lang.Default
}

// LanguageMiddleware attaches the response language to the request context.
func LanguageMiddleware(cfg *LanguageConfig) gin.HandlerFunc {
	conf := cfg.defaulted()
	return func(c *gin.Context) {
		l := resolveLanguage(c, conf)
		c.Request = c.Request.WithContext(lang.WithLanguage(c.Request.Context(), l))
		c.Next()
	}
}
