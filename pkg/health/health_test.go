package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	up   Checker = func(context.Context) error { return nil }
	down Checker = func(context.Context) error { return errors.New("connection refused") }
)

func serveProbe(t *testing.T, handler http.HandlerFunc, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Timestamp.IsZero())
	return rec.Code, resp
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	h.Register("engine", down)

	code, resp := serveProbe(t, h.LivenessHandler(), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
		wantDown    []string
	}{
		{
			name:       "nothing registered",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name:        "everything up",
			critical:    map[string]Checker{"engine": up},
			nonCritical: map[string]Checker{"redis": up, "postgres": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusUp,
		},
		{
			name:       "critical down",
			critical:   map[string]Checker{"engine": down},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusDown,
			wantDown:   []string{"engine"},
		},
		{
			name:        "non-critical down degrades",
			critical:    map[string]Checker{"engine": up},
			nonCritical: map[string]Checker{"redis": down},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
			wantDown:    []string{"redis"},
		},
		{
			name:        "several non-critical down",
			critical:    map[string]Checker{"engine": up},
			nonCritical: map[string]Checker{"redis": down, "kafka": down, "postgres": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
			wantDown:    []string{"kafka", "redis"},
		},
		{
			name:        "critical wins over degraded",
			critical:    map[string]Checker{"engine": down},
			nonCritical: map[string]Checker{"redis": down},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
			wantDown:    []string{"engine", "redis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, fn := range tt.critical {
				h.RegisterCritical(name, fn)
			}
			for name, fn := range tt.nonCritical {
				h.RegisterNonCritical(name, fn)
			}

			code, resp := serveProbe(t, h.ReadinessHandler(), "/health/ready")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.critical)+len(tt.nonCritical))

			var gotDown []string
			for _, name := range h.Names() {
				res := resp.Checks[name]
				_, isCritical := tt.critical[name]
				assert.Equal(t, isCritical, res.Critical, name)
				if res.Status == StatusDown {
					gotDown = append(gotDown, name)
					assert.Equal(t, "connection refused", res.Error)
				}
			}
			assert.Equal(t, tt.wantDown, gotDown)
		})
	}
}

func TestRegister_CriticalAndReplaces(t *testing.T) {
	h := NewHandler()
	h.RegisterNonCritical("engine", up)
	h.Register("engine", down)

	resp := h.Check(context.Background())
	require.Len(t, resp.Checks, 1)
	assert.True(t, resp.Checks["engine"].Critical)
	assert.Equal(t, StatusDown, resp.Status)
}

func TestCheck_RunsConcurrently(t *testing.T) {
	h := NewHandler()
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}
	h.Register("engine", slow)
	h.RegisterNonCritical("kafka", slow)

	done := make(chan Response, 1)
	go func() { done <- h.Check(context.Background()) }()

	<-started
	<-started
	close(release)

	resp := <-done
	assert.Equal(t, StatusUp, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestCheck_TimeoutMarksDown(t *testing.T) {
	h := NewHandler()
	h.SetTimeout(20 * time.Millisecond)
	h.Register("engine", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := h.Check(context.Background())
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["engine"].Error)
}

func TestNames_Sorted(t *testing.T) {
	h := NewHandler()
	h.RegisterNonCritical("redis", func(context.Context) error { return nil })
	h.Register("engine", func(context.Context) error { return nil })
	h.RegisterNonCritical("kafka", func(context.Context) error { return nil })

	assert.Equal(t, []string{"engine", "kafka", "redis"}, h.Names())
}
