package handlers

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healthServer serves a fixed _cat/health response and returns options
// pointing at it.
func healthServer(t *testing.T, response string) HealthOptions {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_cat/health", r.URL.Path)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return HealthOptions{
		Nodes:   host,
		Port:    port,
		Changed: map[string]bool{},
	}
}

func TestHealth_Green(t *testing.T) {
	opts := healthServer(t, "1485877664 11:07:44 elasticsearch green 3 3 6 3 0 0 0 0 - 100.0%\n")
	require.NoError(t, Health(context.Background(), opts))
}

func TestHealth_NotGreen(t *testing.T) {
	opts := healthServer(t, "1485877664 11:07:44 elasticsearch yellow 3 3 6 3 0 0 2 0 - 75.0%\n")

	err := Health(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yellow")
}

func TestHealth_Unreachable(t *testing.T) {
	opts := HealthOptions{
		Nodes:   "127.0.0.1",
		Port:    1, // nothing listens here
		Changed: map[string]bool{},
	}

	err := Health(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster health check failed")
}

func TestHealth_NoNodes(t *testing.T) {
	err := Health(context.Background(), HealthOptions{Changed: map[string]bool{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one node")
}

func TestHealth_InvalidConfigPath(t *testing.T) {
	err := Health(context.Background(), HealthOptions{ConfigPath: "/nonexistent/esroll.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestBuildHealthConfig_ExplicitFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
nodes:
  - es1.internal
port: 9243
username: admin
`)

	opts := HealthOptions{
		ConfigPath: path,
		Port:       9201,
		Changed:    map[string]bool{"port": true},
	}

	cfg, err := buildHealthConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, 9201, cfg.Port)
	assert.Equal(t, []string{"es1.internal"}, cfg.Nodes)
	assert.Equal(t, "admin", cfg.Username)
}
