package invocation

import (
	"os/user"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currentUID(t *testing.T) uint32 {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	uid, err := strconv.Atoi(u.Uid)
	require.NoError(t, err)
	return uint32(uid)
}

func TestNewPopulatesFields(t *testing.T) {
	uid := currentUID(t)
	inv, err := New("whoami", []string{"-a"}, uid, uid, 0)
	require.NoError(t, err)
	assert.Equal(t, "whoami", inv.Command)
	assert.Equal(t, []string{"-a"}, inv.Args)
	assert.NotEmpty(t, inv.Cwd)
	assert.NotEmpty(t, inv.Host)
	assert.NotEmpty(t, inv.User)
	assert.Equal(t, uid, inv.InvokerUID)
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	uid := currentUID(t)
	_, err := New("", nil, uid, uid, 0)
	require.Error(t, err)
}

func TestArgvDuplicatesCommandAtIndexZero(t *testing.T) {
	inv := &Invocation{Command: "ls", Args: []string{"-l", "/tmp"}}
	assert.Equal(t, []string{"ls", "-l", "/tmp"}, inv.Argv())
}

func TestArgvWithNoArgs(t *testing.T) {
	inv := &Invocation{Command: "ls"}
	assert.Equal(t, []string{"ls"}, inv.Argv())
}

func TestBuildRequestPopulatesFromInvocationAndSockPath(t *testing.T) {
	inv := &Invocation{
		Command: "ls",
		Args:    []string{"-la"},
		Cwd:     "/home/alice",
		Host:    "workstation",
		User:    "alice",
	}
	req, err := BuildRequest(inv, "/run/sim/abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", req.ID)
	assert.Equal(t, "workstation", req.Host)
	assert.Equal(t, "alice", req.User)
	assert.Equal(t, "/home/alice", req.Command.Cwd)
	assert.Equal(t, "ls", req.Command.Command)
	assert.Equal(t, []string{"ls", "-la"}, req.Command.Args)
}

func TestBuildRequestFailsClosedOnMissingFields(t *testing.T) {
	inv := &Invocation{Command: "ls"}
	_, err := BuildRequest(inv, "/run/sim/abc123")
	require.Error(t, err)
}
