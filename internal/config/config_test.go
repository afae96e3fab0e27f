package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
poll_interval: 30
db: /var/lib/ctt/ctt.db
certs_dir: /etc/ctt/certs
server_addr: 0.0.0.0:8443
auth:
  admin: [hpc-admins]
  guest: [hpc-users]
slack:
  channel: "#cluster-status"
  token: xoxb-fake
cluster:
  Regex:
    - prefix: gu
      digits: 4
      first_num: 1
      last_num: 18
      board: 2
      slot: 4
scheduler:
  Shell:
    status_cmd: /usr/local/bin/ctt-status
    release_cmd: /usr/local/bin/ctt-release
    offline_cmd: /usr/local/bin/ctt-offline
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesFullDocument(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, cfg.PollInterval())
	require.Equal(t, "/var/lib/ctt/ctt.db", cfg.DB)
	require.Equal(t, []string{"hpc-admins"}, cfg.Auth.Admin)
	require.Equal(t, "#cluster-status", cfg.Slack.Channel)
	require.Len(t, cfg.Cluster.Regex, 1)
	require.Equal(t, "gu", cfg.Cluster.Regex[0].Prefix)
	require.NotNil(t, cfg.Scheduler.Shell)
	require.Equal(t, "/usr/local/bin/ctt-status", cfg.Scheduler.Shell.StatusCmd)
}

func TestLoadRejectsMissingPollInterval(t *testing.T) {
	path := writeConfig(t, `
db: /var/lib/ctt/ctt.db
cluster:
  Regex: []
scheduler:
  Shell:
    status_cmd: x
    release_cmd: x
    offline_cmd: x
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingCluster(t *testing.T) {
	path := writeConfig(t, `
poll_interval: 10
db: /var/lib/ctt/ctt.db
scheduler:
  Shell:
    status_cmd: x
    release_cmd: x
    offline_cmd: x
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
