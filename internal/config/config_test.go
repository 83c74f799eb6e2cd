package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
endpoint:
  scheme: wss
  host: sync.example.com
  port: 4984
  path: /inventory
options:
  - key: tls.server_name
    value: sync.example.com
  - key: header.Authorization
    value: Basic cGVlcjpwdw==
metrics:
  listen: 127.0.0.1:9180
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "wss", cfg.Endpoint.Scheme)
	assert.Equal(t, uint16(4984), cfg.Endpoint.Port)
	addr := cfg.Address()
	assert.Equal(t, "wss://sync.example.com:4984/inventory", addr.String())

	// Order of options is preserved.
	require.Len(t, cfg.Options, 2)
	assert.Equal(t, OptTLSServerName, cfg.Options[0].Key)
	assert.Equal(t, "header.Authorization", cfg.Options[1].Key)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "endpoint:\n  host: peer.local\n"))
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Endpoint.Scheme)
	assert.Equal(t, uint16(4984), cfg.Endpoint.Port)
	assert.Equal(t, "/", cfg.Endpoint.Path)
}

func TestLoadRejectsMissingHost(t *testing.T) {
	_, err := Load(writeConfig(t, "endpoint:\n  scheme: ws\n"))
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	opts := Options{}.With(OptTLSInsecure, "true").With(OptReadWindow, "65536")

	v, ok := opts.Get(OptTLSInsecure)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
	assert.Equal(t, "65536", opts.Value(OptReadWindow))
	_, ok = opts.Get("missing")
	assert.False(t, ok)

	clone := opts.Clone()
	clone[0].Value = "false"
	assert.Equal(t, "true", opts.Value(OptTLSInsecure))
}

func TestReloadableWatch(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	r, err := NewReloadable(path)
	require.NoError(t, err)
	defer r.Close()

	changed := make(chan *Config, 1)
	r.Watch(func(_, next *Config) { changed <- next })

	next := `
endpoint:
  scheme: ws
  host: other.local
  port: 4985
  path: /scratch
metrics:
  listen: 127.0.0.1:9180
`
	require.NoError(t, os.WriteFile(path, []byte(next), 0o600))
	_ = r.Reload() // the watcher may already be reloading; either path notifies

	select {
	case cfg := <-changed:
		assert.Equal(t, "other.local", cfg.Endpoint.Host)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher callback not invoked")
	}
	assert.Equal(t, "other.local", r.Get().Endpoint.Host)
}

func TestReloadRejectsMetricsListenChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	r, err := NewReloadable(path)
	require.NoError(t, err)
	defer r.Close()

	next := `
endpoint:
  host: sync.example.com
metrics:
  listen: 127.0.0.1:9999
`
	require.NoError(t, os.WriteFile(path, []byte(next), 0o600))
	assert.Error(t, r.Reload())
	assert.Equal(t, "127.0.0.1:9180", r.Get().Metrics.Listen)
}
