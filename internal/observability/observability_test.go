package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordDecision(true, "LOW")
	m.RecordDecision(false, "CRITICAL")
	m.RecordDecision(false, "CRITICAL")
	m.IncrDegradedDecision()
	m.RecordOverdue(1000)
	m.RecordOverdue(1000)
	m.RecordPayment("paid")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisions.WithLabelValues("approved", "LOW")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.decisions.WithLabelValues("denied", "CRITICAL")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.degraded))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.overdueMarked))
	assert.Equal(t, float64(2000), testutil.ToFloat64(m.lateFeesCents))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.payments.WithLabelValues("paid")))

	// A second registry must not panic on duplicate registration.
	assert.NotPanics(t, func() { NewMetrics() })
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordSweepDuration(150 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bnpl_sweep_duration_seconds"))
}

func TestZapLoggerMiddleware_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	handler := RequestIDMiddleware(ZapLoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})))

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(RequestIDHeader, "req-"+strings.TrimPrefix(path, "/"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-"+strings.TrimPrefix(path, "/"), rec.Header().Get(RequestIDHeader))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "req-boom", entries[2].ContextMap()["request_id"])
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
