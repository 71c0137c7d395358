package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/localauth/sim/internal/protocol"
)

func TestListSocketsFiltersNonSockets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notasocket"), []byte("x"), 0o644))

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	sockPath := filepath.Join(dir, "realsocket")
	require.NoError(t, unix.Bind(fd, &unix.SockaddrUnix{Name: sockPath}))

	found, err := listSockets(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{sockPath}, found)
}

func TestPromptDecisionApprove(t *testing.T) {
	req := &protocol.ApprovalRequest{ID: "tok1"}
	scanner := bufio.NewScanner(strings.NewReader("y\n"))
	resp := promptDecision(req, scanner, os.Stdout)
	assert.True(t, resp.Approved)
	assert.True(t, resp.HasApproved)
	assert.Empty(t, resp.Comment)
}

func TestPromptDecisionEmptyLineIsRejection(t *testing.T) {
	req := &protocol.ApprovalRequest{ID: "tok2"}
	scanner := bufio.NewScanner(strings.NewReader("\n"))
	resp := promptDecision(req, scanner, os.Stdout)
	assert.False(t, resp.Approved)
	assert.True(t, resp.HasApproved)
}

func TestPromptDecisionFreeformIsRejectionWithComment(t *testing.T) {
	req := &protocol.ApprovalRequest{ID: "tok3"}
	scanner := bufio.NewScanner(strings.NewReader("wrong maintenance window\n"))
	resp := promptDecision(req, scanner, os.Stdout)
	assert.Equal(t, "wrong maintenance window", resp.Comment)
}
