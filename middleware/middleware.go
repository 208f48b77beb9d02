package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shop-service/internal/auth"
	"shop-service/pkg/ctxmanage"
	"shop-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type Mid struct {
	k *auth.Keys
}

func NewMid(k *auth.Keys) (*Mid, error) {
	if k == nil {
		return nil, errors.New("auth keys cannot be nil")
	}
	return &Mid{k: k}, nil
}

// Logger assigns a trace id to the request and logs it once it completes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.AddTraceIdToReq(c)
		start := time.Now()

		slog.Info("started", slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method), slog.Any("URL Path", c.Request.URL.Path))

		c.Next()

		slog.Info("completed", slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method), slog.Any("URL Path", c.Request.URL.Path),
			slog.Int("Status Code", c.Writer.Status()), slog.Int64("Latency", time.Since(start).Milliseconds()))
	}
}

// Authentication rejects requests without a valid bearer token and stores
// the token's claims in the request context.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)
		claims, ok := m.claimsFromHeader(c)
		if !ok {
			slog.Error("authentication failed", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}
		m.attach(c, claims)
		c.Next()
	}
}

// OptionalAuthentication attaches claims when a valid token is present and
// lets anonymous requests through otherwise.
func (m *Mid) OptionalAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := m.claimsFromHeader(c); ok {
			m.attach(c, claims)
		}
		c.Next()
	}
}

func (m *Mid) claimsFromHeader(c *gin.Context) (auth.Claims, bool) {
	parts := strings.Split(c.Request.Header.Get("Authorization"), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return auth.Claims{}, false
	}
	claims, err := m.k.ValidateToken(parts[1])
	if err != nil {
		slog.Warn("invalid token", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)), slog.String(logkey.ERROR, err.Error()))
		return auth.Claims{}, false
	}
	return claims, true
}

func (m *Mid) attach(c *gin.Context, claims auth.Claims) {
	ctx := context.WithValue(c.Request.Context(), auth.ClaimsKey, claims)
	c.Request = c.Request.WithContext(ctx)
}

// Authorize runs handler only when the request principal holds every capability.
func (m *Mid) Authorize(handler gin.HandlerFunc, caps ...auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)
		p := auth.PrincipalFromContext(c.Request.Context())
		if p.IsAnonymous() {
			slog.Error("no principal for protected route", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}
		for _, cp := range caps {
			if !p.Can(cp) {
				slog.Error("principal lacks capability", slog.String(logkey.TraceID, traceId),
					slog.String("role", p.Kind.String()), slog.Int64(logkey.UserID, p.UserID))
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": http.StatusText(http.StatusForbidden)})
				return
			}
		}
		handler(c)
	}
}
