package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/newsfang/internal/observability"
)

func startDiagnostics(t *testing.T, checks ...observability.ReadyCheck) *observability.DiagnosticsServer {
	t.Helper()

	srv, newErr := observability.NewDiagnosticsServer("127.0.0.1:0", nil, checks...)
	require.NoError(t, newErr)

	t.Cleanup(func() { _ = srv.Close() })

	return srv
}

func get(t *testing.T, srv *observability.DiagnosticsServer, path string) (int, string) {
	t.Helper()

	resp, getErr := http.Get("http://" + srv.Addr() + path)
	require.NoError(t, getErr)

	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	return resp.StatusCode, string(body)
}

func TestDiagnosticsLivenessAlwaysOK(t *testing.T) {
	t.Parallel()

	srv := startDiagnostics(t)

	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestDiagnosticsReadinessPassesWithoutChecks(t *testing.T) {
	t.Parallel()

	srv := startDiagnostics(t)

	code, body := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestDiagnosticsReadinessFailsWhenProbeFails(t *testing.T) {
	t.Parallel()

	failing := func(_ context.Context) error { return errors.New("db down") }
	srv := startDiagnostics(t, failing)

	code, body := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"unavailable"}`, body)
}
