package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestLivenessAlwaysOK(t *testing.T) {
	s := NewServer(Config{ServiceName: "quantopia", Version: "test", Logger: quietLogger()})
	for _, path := range []string{"/health", "/live"} {
		w, body := get(t, s, path)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "quantopia", body["service"])
	}
}

func TestReadiness(t *testing.T) {
	store := &pinger{}
	s := NewServer(Config{
		ServiceName: "quantopia",
		Logger:      quietLogger(),
		Checks:      map[string]Check{"store": PingCheck(store)},
	})

	w, body := get(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready until marked")
	assert.Equal(t, "not_ready", body["checks"].(map[string]any)["service"])

	s.SetReady(true)
	w, body = get(t, s, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["checks"].(map[string]any)["store"])

	store.err = errors.New("connection refused")
	w, body = get(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["checks"].(map[string]any)["store"], "connection refused")
}

func TestGRPCHealthFollowsReadiness(t *testing.T) {
	store := &pinger{}
	s := NewServer(Config{
		ServiceName: "quantopia",
		Logger:      quietLogger(),
		Checks:      map[string]Check{"store": PingCheck(store)},
	})

	lis := bufconn.Listen(1 << 16)
	gs := grpc.NewServer()
	s.RegisterGRPC(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "quantopia"})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	s.SetReady(true)
	healthy, _ := s.Evaluate(context.Background())
	require.True(t, healthy)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	store.err = errors.New("down")
	healthy, _ = s.Evaluate(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	s.SetReady(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewServer(Config{ServiceName: "quantopia", Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
