package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware traces every request, honoring trace context propagated by
// the caller and echoing the assigned ids back in the response headers.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithRemote(c.Request.Context(),
			c.GetHeader(HeaderTraceID),
			c.GetHeader(HeaderSpanID),
		)

		span, ctx := tracer.Begin(ctx, c.FullPath())
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, span.TraceID)
		c.Header(HeaderSpanID, span.SpanID)

		c.Next()

		span.End()
		span.Status = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Fail(c.Errors.Last())
		}
		tracer.Submit(span)
	}
}
