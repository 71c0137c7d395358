//go:build linux

package credgate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// These tests only exercise the non-privileged paths: they run as the
// invoking user (not root), so AsRoot(0, ...) will fail to raise euid and
// that failure must propagate as a normal error, not a Fatal call — Fatal
// is reserved for a failed *restore*, never a failed *raise*.
func TestAsRootPropagatesRaiseFailureWithoutFatal(t *testing.T) {
	if unix.Getuid() == 0 {
		t.Skip("running as root: cannot exercise a failing euid raise")
	}

	fatalCalled := false
	orig := Fatal
	Fatal = func(err error) { fatalCalled = true }
	t.Cleanup(func() { Fatal = orig })

	ran := false
	err := AsRoot(0, func() error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, ran, "fn must not run if the euid raise failed")
	assert.False(t, fatalCalled, "a failed raise is an ordinary error, not fatal")
}

func TestAsRootRunsFnAtCurrentEUID(t *testing.T) {
	// Raising to our own current euid always succeeds, regardless of
	// privilege, and lets us verify fn actually executes and its error
	// propagates.
	target := uint32(unix.Geteuid())
	sentinel := errors.New("boom")

	err := AsRoot(target, func() error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestDropToRealReportsPriorEffectiveUID(t *testing.T) {
	before := uint32(unix.Geteuid())
	saved, err := DropToReal()
	require.NoError(t, err)
	assert.Equal(t, before, saved)
	assert.Equal(t, uint32(unix.Getuid()), uint32(unix.Geteuid()))
}
