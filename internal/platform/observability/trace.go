package observability

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omnipizza/storefront/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

var tracer = otel.Tracer("github.com/omnipizza/storefront/internal/platform/observability")

// TraceMiddleware continues a Cloud Trace context when the load balancer sent one, starts a
// server span and records the trace ids on the request context.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			spanCtx := span.SpanContext()
			info := requestctx.TraceInfo{
				TraceID:   spanCtx.TraceID().String(),
				SpanID:    spanCtx.SpanID().String(),
				Sampled:   spanCtx.IsSampled(),
				ProjectID: projectID,
			}
			ctx = requestctx.WithTrace(ctx, info)
			if spanCtx.IsValid() {
				w.Header().Set(cloudTraceHeader, formatCloudTraceHeader(spanCtx))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseCloudTraceContext reads TRACE_ID/SPAN_ID;o=OPTIONS where SPAN_ID is decimal.
func parseCloudTraceContext(header string) (trace.SpanContext, bool) {
	header = strings.TrimSpace(header)
	traceHex, rest, ok := strings.Cut(header, "/")
	if !ok {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(strings.TrimSpace(traceHex))
	if err != nil {
		return trace.SpanContext{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	num, err := strconv.ParseUint(strings.TrimSpace(spanPart), 10, 64)
	if err != nil || num == 0 {
		return trace.SpanContext{}, false
	}
	var spanID trace.SpanID
	binary.BigEndian.PutUint64(spanID[:], num)

	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func formatCloudTraceHeader(spanCtx trace.SpanContext) string {
	spanID := spanCtx.SpanID()
	option := "0"
	if spanCtx.IsSampled() {
		option = "1"
	}
	return fmt.Sprintf("%s/%d;o=%s", spanCtx.TraceID().String(), binary.BigEndian.Uint64(spanID[:]), option)
}
