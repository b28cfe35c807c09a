package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/gin-gonic/gin"
)

// CORS returns a Gin middleware that allows the configured origins to call
// the API from a browser.
func CORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")
		if _, ok := allowed[origin]; !ok || origin == "" {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AdminAuth returns a Gin middleware that requires the admin Bearer token.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, problem := bearerToken(c.GetHeader("Authorization"))
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logx.Warnf("admin auth rejected path=%s remote=%s", c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the token, or explains why the header is unusable.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "missing Authorization header"
	}
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "Authorization header must use Bearer scheme"
	}
	return strings.TrimSpace(tok), ""
}

// RequestLog logs each request through logx. Verification outcomes are
// logged by the handlers, so only the request line and status go here.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		msg := "http: %s %s status=%d duration=%s"
		args := []any{c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond)}
		if status >= 500 {
			logx.Warnf(msg, args...)
			return
		}
		logx.Debugf(msg, args...)
	}
}
