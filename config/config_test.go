package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigurationLoading(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
bus:
  mailbox_size: 8
metrics:
  enabled: true
  listen_addr: ":9100"
zmq:
  port: 6000
  endpoints:
    - tcp://10.0.0.2:6000
  export:
    - publisher: packager-1
      event: segment-ready
  import:
    - publisher: packager-1
      event: segment-ready
      to: ingest-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Bus.MailboxSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.ListenAddr)
	assert.Equal(t, 6000, cfg.ZMQ.Port)
	assert.Equal(t, "127.0.0.1", cfg.ZMQ.Host)
	assert.Equal(t, []EventConfig{{Publisher: "packager-1", Event: "segment-ready"}}, cfg.ZMQ.Export)
	assert.Equal(t, "ingest-1", cfg.ZMQ.Import[0].To)
	assert.Equal(t, 256, cfg.AddrBook.Size)
	assert.False(t, cfg.Consul.Enabled)
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "bus:\n  mailbox_size: 8\n")
	t.Setenv("MEDIABUS_BUS_MAILBOX_SIZE", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Bus.MailboxSize)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"negative mailbox": "bus:\n  mailbox_size: -1\n",
		"export missing event": `
zmq:
  export:
    - publisher: packager-1
`,
		"import relay reused": `
zmq:
  endpoints:
    - tcp://10.0.0.2:6000
  import:
    - publisher: packager-1
      event: segment-ready
      to: ingest-1
    - publisher: packager-2
      event: segment-ready
      to: ingest-1
`,
		"import without endpoints": `
zmq:
  import:
    - publisher: packager-1
      event: segment-ready
      to: ingest-1
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.Bus.MailboxSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverrideScalarWithFileLists(t *testing.T) {
	path := writeConfig(t, "zmq:\n  endpoints:\n    - tcp://10.0.0.2:6000\n")
	t.Setenv("MEDIABUS_ZMQ_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.ZMQ.Port)
	assert.Equal(t, []string{"tcp://10.0.0.2:6000"}, cfg.ZMQ.Endpoints)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
