// Package policy evaluates admin-group membership, deny list, and safe list
// against an invocation. Callers must run the checks in this fixed order:
// CheckAdmin → CheckDeny → CheckSafe, so that a command on both the deny
// and safe lists is denied rather than let through.
package policy

import (
	"fmt"
	"os/user"

	"github.com/localauth/sim/internal/config"
	"github.com/localauth/sim/internal/invocation"
)

// ErrNotAdmin is returned by CheckAdmin when the invoker is not a member of
// config.AdminGroup.
type ErrNotAdmin struct {
	User string
}

func (e *ErrNotAdmin) Error() string {
	return fmt.Sprintf("user <%s> is not in admin group", e.User)
}

// ErrDenied is returned by CheckDeny when the invocation matches a
// deny_command entry.
type ErrDenied struct {
	Command string
}

func (e *ErrDenied) Error() string {
	return "command is denied"
}

// membershipFunc resolves whether username belongs to groupName's full
// group expansion (primary + supplementary). A package-level var so tests
// can substitute a fake without depending on the system's real group
// database — the same seam the handshake package uses for peer-group
// resolution.
var membershipFunc = isMember

// CheckAdmin reports whether the invoker's supplementary-group list
// contains config.AdminGroup's gid.
func CheckAdmin(cfg *config.Config, inv *invocation.Invocation) error {
	ok, err := membershipFunc(inv.User, cfg.AdminGroup)
	if err != nil {
		return fmt.Errorf("policy.CheckAdmin: %w", err)
	}
	if !ok {
		return &ErrNotAdmin{User: inv.User}
	}
	return nil
}

// CheckDeny scans config.DenyCommand for a program-name match. Matching
// entries abort the invocation before any approval attempt.
func CheckDeny(cfg *config.Config, inv *invocation.Invocation) error {
	for _, d := range cfg.DenyCommand {
		if d.Matches(inv.Command, inv.Args) {
			return &ErrDenied{Command: inv.Command}
		}
	}
	return nil
}

// CheckSafe reports whether the invocation matches a safe_command entry,
// meaning it requires no human approval. Callers must still have run
// CheckDeny first — denial wins over safety even if a command appears in
// both lists.
func CheckSafe(cfg *config.Config, inv *invocation.Invocation) bool {
	for _, d := range cfg.SafeCommand {
		if d.Matches(inv.Command, inv.Args) {
			return true
		}
	}
	return false
}

// isMember reports whether username's full group membership (primary +
// supplementary, via the system database) includes groupName.
func isMember(username, groupName string) (bool, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return false, fmt.Errorf("lookup user %q: %w", username, err)
	}
	g, err := user.LookupGroup(groupName)
	if err != nil {
		return false, fmt.Errorf("lookup group %q: %w", groupName, err)
	}
	gids, err := u.GroupIds()
	if err != nil {
		return false, fmt.Errorf("list groups for %q: %w", username, err)
	}
	for _, gid := range gids {
		if gid == g.Gid {
			return true, nil
		}
	}
	return false, nil
}
