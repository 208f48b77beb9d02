package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ctxKey int

// TraceIdKey is the request context key holding the trace id set by middleware.Logger.
const TraceIdKey ctxKey = 1

// AddTraceIdToReq stores a fresh trace id in the request context and returns it.
func AddTraceIdToReq(c *gin.Context) string {
	traceId := uuid.NewString()
	ctx := context.WithValue(c.Request.Context(), TraceIdKey, traceId)
	c.Request = c.Request.WithContext(ctx)
	return traceId
}

func GetTraceIdOfRequest(c *gin.Context) string {
	return GetTraceId(c.Request.Context())
}

func GetTraceId(ctx context.Context) string {
	traceId, ok := ctx.Value(TraceIdKey).(string)
	if !ok {
		return "Unknown"
	}
	return traceId
}
