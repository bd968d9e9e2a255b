package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		traceIn   string
		requestIn string
		keepTrace bool
		keepReq   bool
	}{
		{name: "caller ids kept", traceIn: "trace-abc", requestIn: "req-123", keepTrace: true, keepReq: true},
		{name: "missing ids minted"},
		{name: "ids with spaces replaced", traceIn: "bad trace", requestIn: "bad\tid"},
		{name: "oversized id replaced", traceIn: strings.Repeat("a", 200), requestIn: "ok", keepReq: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen *ctxutil.TraceData
			r := gin.New()
			r.Use(AttachTraceContext())
			r.GET("/x", func(c *gin.Context) {
				seen = ctxutil.GetTraceData(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.traceIn != "" {
				req.Header.Set(HeaderTraceID, tc.traceIn)
			}
			if tc.requestIn != "" {
				req.Header.Set(HeaderRequestID, tc.requestIn)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if seen == nil || seen.TraceID == "" || seen.RequestID == "" {
				t.Fatalf("trace data: want both ids got=%+v", seen)
			}
			if got := w.Header().Get(HeaderTraceID); got != seen.TraceID {
				t.Fatalf("trace header: want=%q got=%q", seen.TraceID, got)
			}
			if got := w.Header().Get(HeaderRequestID); got != seen.RequestID {
				t.Fatalf("request header: want=%q got=%q", seen.RequestID, got)
			}
			if (seen.TraceID == tc.traceIn) != tc.keepTrace {
				t.Fatalf("trace id kept: want=%v got=%q", tc.keepTrace, seen.TraceID)
			}
			if (seen.RequestID == tc.requestIn) != tc.keepReq {
				t.Fatalf("request id kept: want=%v got=%q", tc.keepReq, seen.RequestID)
			}
		})
	}
}
