package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
schema_version: "1"
admin_group: sim-admins
approve_group: sim-approvers
sock_dir: /run/sim
safe_command:
  - command: ["ls", "cat"]
deny_command:
  - command: ["rm"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sim-admins", cfg.AdminGroup)
	assert.Equal(t, "sim-approvers", cfg.ApproveGroup)
	assert.True(t, cfg.SafeCommand[0].Matches("ls", nil))
	assert.False(t, cfg.SafeCommand[0].Matches("rm", nil))
	assert.True(t, cfg.DenyCommand[0].Matches("rm", nil))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/sim.conf")
	require.Error(t, err)
}

func TestLoadTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.conf")
	huge := strings.Repeat("a", MaxConfigSize+1)
	require.NoError(t, os.WriteFile(path, []byte(huge), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestValidateRequiresFields(t *testing.T) {
	cfg := Defaults()
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_group must not be empty")
	assert.Contains(t, err.Error(), "approve_group must not be empty")
}

func TestValidateSockDirMustBeAbsolute(t *testing.T) {
	cfg := Defaults()
	cfg.AdminGroup = "admins"
	cfg.ApproveGroup = "approvers"
	cfg.SockDir = "relative/path"
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be absolute")
}

func TestCommandDefinitionMatchesIgnoresArgs(t *testing.T) {
	d := CommandDefinition{Command: []string{"rm"}, Args: []string{"-rf"}}
	// Args is reserved and must not affect matching.
	assert.True(t, d.Matches("rm", []string{"-rf", "/"}))
	assert.True(t, d.Matches("rm", nil))
}
