// Package config loads and validates sim's configuration file.
//
// Configuration file: /etc/sim.conf (YAML), default.
// Schema version: 1
//
// Validation:
//   - admin_group, approve_group, and sock_dir are required.
//   - sock_dir must be an absolute path.
//   - Invalid config: the wrapper refuses to start (fatal error). There is
//     no hot-reload path — sim is a one-shot wrapper, not a daemon.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxConfigSize bounds the config file read: a setuid-root wrapper must
// never be tricked into reading an unbounded amount of attacker-controlled
// data while running at elevated privilege.
const MaxConfigSize = 10 << 20 // 10 MiB

// DefaultPath is the trusted path sim reads its configuration from.
const DefaultPath = "/etc/sim.conf"

// CommandDefinition matches invocations by program name. Args is reserved
// for a future argument-predicate extension; the policy engine reads it but
// never matches on it, so configs that already set it keep working
// unchanged once matching is added.
type CommandDefinition struct {
	Command []string `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Matches reports whether program is one of d's command names. Argument
// predicates are deliberately not consulted — see CommandDefinition.Args.
func (d CommandDefinition) Matches(program string, _ []string) bool {
	for _, c := range d.Command {
		if c == program {
			return true
		}
	}
	return false
}

// Config is the root configuration structure for sim.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	// AdminGroup is the group whose members may invoke sim at all.
	AdminGroup string `yaml:"admin_group"`

	// ApproveGroup is the group whose members may approve a request.
	ApproveGroup string `yaml:"approve_group"`

	// SockDir is the root-owned, non-world-writable directory rendezvous
	// sockets are created in.
	SockDir string `yaml:"sock_dir"`

	SafeCommand []CommandDefinition `yaml:"safe_command"`
	DenyCommand []CommandDefinition `yaml:"deny_command"`
}

// Defaults returns a Config populated with conservative defaults. Fields
// with no safe default (AdminGroup, ApproveGroup) are left empty and must
// come from the file.
func Defaults() Config {
	return Config{
		SchemaVersion: "1",
		SockDir:       "/run/sim",
	}
}

// Load reads, parses, and validates the config at path. The file must be
// no larger than MaxConfigSize.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config.Load: stat %q: %w", path, err)
	}
	if info.Size() > MaxConfigSize {
		return nil, fmt.Errorf("config.Load: %q is %d bytes, exceeds %d byte limit", path, info.Size(), MaxConfigSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, returning a single
// error describing every violation found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.AdminGroup == "" {
		errs = append(errs, "admin_group must not be empty")
	}
	if cfg.ApproveGroup == "" {
		errs = append(errs, "approve_group must not be empty")
	}
	if cfg.SockDir == "" {
		errs = append(errs, "sock_dir must not be empty")
	} else if !filepath.IsAbs(cfg.SockDir) {
		errs = append(errs, fmt.Sprintf("sock_dir must be absolute, got %q", cfg.SockDir))
	}
	for i, d := range cfg.DenyCommand {
		if len(d.Command) == 0 {
			errs = append(errs, fmt.Sprintf("deny_command[%d] has no command names", i))
		}
	}
	for i, d := range cfg.SafeCommand {
		if len(d.Command) == 0 {
			errs = append(errs, fmt.Sprintf("safe_command[%d] has no command names", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
