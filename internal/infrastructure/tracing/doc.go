/*
Package tracing provides lightweight request tracing for the kernel.

# Overview

Every HTTP request gets a trace id and a span; callers can propagate an
existing trace via the X-Trace-ID and X-Span-ID headers, and the assigned
ids are echoed back in the response. Completed spans are logged through
zap rather than exported to an external collector.

# Usage

	tracer := tracing.New("kernel", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual spans inside a handler
	span, ctx := tracer.Begin(c.Request.Context(), "render")
	defer func() {
		span.End()
		tracer.Submit(span)
	}()

# Performance

Completed spans queue through a bounded channel (1000 entries) and are
logged asynchronously; a full buffer drops spans instead of blocking the
request path.
*/
package tracing
