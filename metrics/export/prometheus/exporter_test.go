package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sportsprop/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

type noCredentials struct{}

func (noCredentials) FetchPasswordHash(context.Context, string) (string, error) {
	return "", authcore.ErrUserNotFound
}

func (noCredentials) FetchRoles(context.Context, string) ([]string, error) { return nil, nil }

func (noCredentials) UpdatePasswordHash(context.Context, string, string) error { return nil }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	require.Empty(t, exp.Render())
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:  7,
				authcore.MetricAccountLocked: 2,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	require.Contains(t, out, "authcore_login_success_total 7")
	require.Contains(t, out, "authcore_account_locked_total 2")
	require.Contains(t, out, "authcore_login_failure_total 0")
	require.Contains(t, out, `authcore_validate_latency_seconds_bucket{le="0.005"} 1`)
	require.Contains(t, out, `authcore_validate_latency_seconds_bucket{le="+Inf"} 36`)
	require.Contains(t, out, "authcore_validate_latency_seconds_count 36")
	require.Contains(t, out, `authcore_login_latency_seconds_bucket{le="+Inf"} 0`)
	require.Contains(t, out, "authcore_audit_dropped_total 2")
	require.NotContains(t, out, "authcore_sessions_active", "sources without a session table export no gauge")
	require.Equal(t, out, exp.Render())
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	require.Contains(t, rec.Body.String(), "authcore_login_success_total 1")
}

func TestRenderFromEngine(t *testing.T) {
	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Hasher.BcryptCost = 4
	cfg.Session.SweepInterval = 0

	engine, err := authcore.New().WithConfig(cfg).WithCredentials(noCredentials{}).Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.Login(context.Background(), "ghost", "whatever-secret", "")
	require.ErrorIs(t, err, authcore.ErrInvalidCredentials)

	out := NewPrometheusExporter(engine).Render()
	require.Contains(t, out, "authcore_login_failure_total 1")
	require.Contains(t, out, "# TYPE authcore_login_latency_seconds histogram")
	require.Contains(t, out, `authcore_login_latency_seconds_bucket{le="+Inf"} 1`)
	require.Contains(t, out, "# TYPE authcore_sessions_active gauge")
	require.Contains(t, out, "authcore_sessions_active 0")
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:       1000,
				authcore.MetricLoginFailure:       40,
				authcore.MetricSessionCreated:     800,
				authcore.MetricSessionInvalidated: 20,
				authcore.MetricTokenIssued:        1000,
				authcore.MetricPermissionDenied:   3,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricLoginLatency:    {1, 2, 30, 400, 500, 60, 7, 0},
				authcore.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
