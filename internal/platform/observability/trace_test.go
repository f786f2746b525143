package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/storefront/internal/platform/requestctx"
)

const (
	sampleTraceID   = "4bf92f3577b34da6a3ce929d0e0e4736"
	sampleSpanID    = "00f067aa0ba902b7"
	sampleParent    = "00-" + sampleTraceID + "-" + sampleSpanID + "-01"
	cloudTraceValue = "105445aa7843bc8bf206b12000100000/1;o=1"
)

func captureTrace(t *testing.T, projectID string, header http.Header) (requestctx.TraceInfo, *httptest.ResponseRecorder) {
	t.Helper()
	var (
		info requestctx.TraceInfo
		ok   bool
	)
	h := TraceMiddleware(projectID)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok = requestctx.Trace(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.True(t, ok, "trace info stored on the context")
	return info, rec
}

func TestTraceMiddlewareContinuesTraceparent(t *testing.T) {
	info, rec := captureTrace(t, "storefront-prod", http.Header{"Traceparent": {sampleParent}})

	assert.Equal(t, sampleTraceID, info.TraceID)
	assert.NotEmpty(t, info.SpanID)
	assert.True(t, info.Sampled)
	assert.Equal(t, "storefront-prod", info.ProjectID)
	assert.Contains(t, rec.Header().Get("traceparent"), sampleTraceID)
}

func TestTraceMiddlewareReadsCloudTraceHeader(t *testing.T) {
	info, _ := captureTrace(t, "", http.Header{cloudTraceHeader: {cloudTraceValue}})

	assert.Equal(t, "105445aa7843bc8bf206b12000100000", info.TraceID)
	assert.True(t, info.Sampled)
}

func TestTraceMiddlewareWithoutIncomingContext(t *testing.T) {
	info, rec := captureTrace(t, "storefront-prod", http.Header{cloudTraceHeader: {"not-a-trace"}})

	assert.Empty(t, info.TraceID)
	assert.Equal(t, "storefront-prod", info.ProjectID)
	assert.Empty(t, rec.Header().Get("traceparent"))
}

func TestParseCloudTraceContext(t *testing.T) {
	cases := []struct {
		header  string
		ok      bool
		spanID  string
		sampled bool
	}{
		{header: cloudTraceValue, ok: true, spanID: "0000000000000001", sampled: true},
		{header: "105445aa7843bc8bf206b12000100000/abcdef;o=0", ok: true, spanID: "0000000000abcdef"},
		{header: "105445aa7843bc8bf206b12000100000/0;o=1"},
		{header: "105445aa7843bc8bf206b12000100000"},
		{header: "xyz/1;o=1"},
		{header: ""},
	}
	for _, tc := range cases {
		sc, ok := parseCloudTraceContext(tc.header)
		require.Equal(t, tc.ok, ok, "header %q", tc.header)
		if !ok {
			continue
		}
		assert.Equal(t, tc.spanID, sc.SpanID().String(), "header %q", tc.header)
		assert.Equal(t, tc.sampled, sc.IsSampled(), "header %q", tc.header)
		assert.True(t, sc.IsRemote())
	}
}

func TestRequestLoggerLogsTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := InjectLoggerMiddleware(zap.New(core))(TraceMiddleware("storefront-prod")(RequestLoggerMiddleware()(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", sampleParent)
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, sampleTraceID, fields["trace_id"])
	assert.Equal(t, "projects/storefront-prod/traces/"+sampleTraceID, fields["logging.googleapis.com/trace"])
}

type statusSpan struct {
	noop.Span
	code        codes.Code
	description string
}

func (s *statusSpan) SetStatus(code codes.Code, description string) {
	s.code, s.description = code, description
}

func TestSetSpanStatus(t *testing.T) {
	span := &statusSpan{}
	setSpanStatus(span, http.StatusBadGateway)
	assert.Equal(t, codes.Error, span.code)
	assert.Equal(t, "Bad Gateway", span.description)

	setSpanStatus(span, http.StatusNotFound)
	assert.Equal(t, codes.Ok, span.code)

	setSpanStatus(nil, http.StatusOK)
}
