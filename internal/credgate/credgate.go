//go:build linux

// Package credgate provides a scoped primitive that temporarily raises the
// effective UID for a single privileged operation and restores it on every
// exit path, including a failing fn. A failure to restore is treated as
// fatal: a process that cannot prove it has dropped back to invoker
// privilege must not be allowed to keep running at an unknown privilege
// level.
package credgate

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Fatal is called when restoring the effective UID fails. It is a package
// variable (rather than a hardcoded os.Exit) so tests can observe the
// failure instead of killing the test binary — production callers leave it
// at the default.
var Fatal = func(err error) {
	panic(fmt.Sprintf("credgate: fatal: %v", err))
}

// AsRoot runs fn with the effective UID raised to target (normally 0, the
// saved-set-UID the wrapper was launched with), then restores the
// effective UID to the process's real UID before returning — on every exit
// path, including a panic or an error returned by fn.
//
// Only code that must touch the rendezvous socket path (root-owned
// directory) should run inside this bracket; everything else executes at
// invoker privilege, so a bug anywhere outside an AsRoot call can never
// touch anything the invoker couldn't already touch themselves.
func AsRoot(target uint32, fn func() error) (err error) {
	if seteuidErr := unix.Seteuid(int(target)); seteuidErr != nil {
		return fmt.Errorf("credgate: raise euid to %d: %w", target, seteuidErr)
	}

	defer func() {
		real := unix.Getuid()
		if restoreErr := unix.Seteuid(real); restoreErr != nil {
			Fatal(fmt.Errorf("credgate: restore euid to %d failed: %w", real, restoreErr))
		}
	}()

	return fn()
}

// DropToReal lowers the effective UID to the process's real UID and
// returns the effective UID it had before the drop. Called once at process
// entry, before any other work, so the wrapper spends as little time as
// possible at elevated privilege; the returned value is the saved UID later
// brackets raise back to.
func DropToReal() (savedEUID uint32, err error) {
	savedEUID = uint32(unix.Geteuid())
	if err := unix.Seteuid(unix.Getuid()); err != nil {
		return 0, fmt.Errorf("credgate: drop euid to real uid: %w", err)
	}
	return savedEUID, nil
}
