package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"

	maxCorrelationIDLen = 128
)

// AttachTraceContext stamps every request with a trace id and a request id. Caller supplied
// ids are accepted when they are short printable tokens; otherwise fresh ones are minted. When
// otelgin already opened a span its trace id wins over a generated one.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)

		reqID, ok := correlationID(c.GetHeader(HeaderRequestID))
		if !ok {
			reqID = uuid.NewString()
		}
		traceID, ok := correlationID(c.GetHeader(HeaderTraceID))
		if !ok {
			if sc := span.SpanContext(); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = uuid.NewString()
			}
		}
		span.SetAttributes(attribute.String("http.request_id", reqID))

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		h := c.Writer.Header()
		h.Set(HeaderTraceID, traceID)
		h.Set(HeaderRequestID, reqID)
		c.Next()
	}
}

func correlationID(raw string) (string, bool) {
	if raw == "" || len(raw) > maxCorrelationIDLen {
		return "", false
	}
	for _, r := range raw {
		if r <= ' ' || r > '~' {
			return "", false
		}
	}
	return raw, true
}
