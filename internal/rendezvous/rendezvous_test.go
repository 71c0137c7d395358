//go:build linux

package rendezvous

import (
	"os/user"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRandomTokenLengthAndAlphabet(t *testing.T) {
	tok, err := randomToken()
	require.NoError(t, err)
	assert.Len(t, tok, tokenLength)
	for _, c := range tok {
		assert.Contains(t, tokenAlphabet, string(c))
	}
}

func TestRandomTokenIsNotConstant(t *testing.T) {
	a, err := randomToken()
	require.NoError(t, err)
	b, err := randomToken()
	require.NoError(t, err)
	// Not a proof of randomness, but catches an accidentally-constant
	// sampler (e.g. seeded at zero).
	assert.NotEqual(t, a, b)
}

func TestNewFailsCleanlyWithoutPrivilege(t *testing.T) {
	if unix.Getuid() == 0 {
		t.Skip("running as root: New is expected to succeed, covered by an integration test instead")
	}
	self, err := user.Current()
	require.NoError(t, err)
	group, err := user.LookupGroupId(self.Gid)
	require.NoError(t, err)

	_, err = New(t.TempDir(), group.Name, 0)
	require.Error(t, err)
	// The failure must come from the privilege bracket, not from an
	// earlier step.
	assert.True(t, strings.Contains(err.Error(), "rendezvous.New"))
}

func TestNewRejectsUnknownApproverGroup(t *testing.T) {
	_, err := New(t.TempDir(), "no-such-group-xyz", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup group")
}
