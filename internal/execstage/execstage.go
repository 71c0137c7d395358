//go:build linux

// Package execstage implements the terminal, strictly-ordered transition
// that drops all alternate credentials, clears the environment, and
// replaces the process image with the target command. Once entered, it
// does not return on success — the process becomes the target command.
package execstage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// defaultPath is the PATH used to resolve command when none is available
// in the environment — the same confstr(_CS_PATH)-style fallback POSIX
// execvp/execvpe use, since PATH is captured before the environment is
// cleared (step 3 runs before step 4's lookup).
const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// execve is the final syscall; a package variable so tests can observe
// what Run would have executed without actually replacing the test
// process image.
var execve = unix.Exec

// Run performs, strictly in order, all must-succeed-or-abort steps:
//  1. setresuid(0,0,0), then setresgid(0,0,0)
//  2. setgroups([])
//  3. clear the environment
//  4. execvpe(command, argv, env=[])
//
// Any failure aborts the process without attempting rollback — elevation
// has already been committed to.
func Run(command string, args []string) error {
	if err := unix.Setresuid(0, 0, 0); err != nil {
		return fmt.Errorf("execstage.Run: setresuid(0,0,0): %w", err)
	}
	if err := unix.Setresgid(0, 0, 0); err != nil {
		return fmt.Errorf("execstage.Run: setresgid(0,0,0): %w", err)
	}
	if err := unix.Setgroups(nil); err != nil {
		return fmt.Errorf("execstage.Run: setgroups([]): %w", err)
	}

	// PATH resolution must happen against the environment the process had
	// before it was cleared — execve is given an empty environment, so sim
	// resolves the path itself first, the same way a libc execvp falls
	// back to confstr(_CS_PATH) when PATH is unset.
	path := lookPath(command, os.Getenv("PATH"))

	os.Clearenv()

	argv := make([]string, 0, len(args)+1)
	argv = append(argv, command)
	argv = append(argv, args...)

	if path == "" {
		return fmt.Errorf("execstage.Run: %q not found in PATH", command)
	}

	if err := execve(path, argv, nil); err != nil {
		return fmt.Errorf("execstage.Run: exec %q: %w", path, err)
	}
	// unreachable on success: execve replaces the process image.
	return nil
}

// lookPath resolves command against searchPath, falling back to
// defaultPath when searchPath is empty. If command already contains a
// path separator it is used as-is (not searched), matching execvp(3).
func lookPath(command, searchPath string) string {
	if strings.Contains(command, "/") {
		if isExecutable(command) {
			return command
		}
		return ""
	}

	if searchPath == "" {
		searchPath = defaultPath
	}
	for _, dir := range strings.Split(searchPath, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, command)
		if isExecutable(candidate) {
			return candidate
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
