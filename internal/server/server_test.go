package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func makeServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rs := miniredis.RunT(t)

	c := DefaultConfig()
	c.Redis.Addrs = []string{rs.Addr()}
	c.Auth.Secret = "secret"
	c.Game.AutoTick = false

	s, err := Init(c)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	return s, rs
}

func TestInit_RequiresSecret(t *testing.T) {
	_, err := Init(DefaultConfig())
	require.ErrorContains(t, err, "auth secret")
}

func TestServer_HTTP(t *testing.T) {
	s, rs := makeServer(t)

	tests := map[string]struct {
		arrange    func(req *http.Request)
		path       string
		wantStatus int
		assert     func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		"should report healthy": {
			path:       "/healthz",
			wantStatus: http.StatusOK,
		},
		"should serve metrics": {
			path:       "/metrics",
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Contains(t, w.Body.String(), "go_goroutines")
			},
		},
		"should serve seeded leaderboard": {
			path:       "/api/v1/leaderboard",
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Contains(t, w.Body.String(), "QuoteMaster")
				assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
			},
		},
		"should compress api responses": {
			arrange: func(req *http.Request) {
				req.Header.Set("Accept-Encoding", "gzip")
			},
			path:       "/api/v1/jobs",
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			},
		},
		"should serve pprof": {
			path:       "/debug/pprof/",
			wantStatus: http.StatusOK,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.arrange != nil {
				tt.arrange(req)
			}

			w := httptest.NewRecorder()
			s.http.Handler.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.assert != nil {
				tt.assert(t, w)
			}
		})
	}

	t.Run("should report unhealthy redis", func(t *testing.T) {
		rs.SetError("down")
		defer rs.SetError("")

		w := httptest.NewRecorder()
		s.http.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "redis"))
	})
}

func TestServer_GRPCHealth(t *testing.T) {
	s, _ := makeServer(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.grpc.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
