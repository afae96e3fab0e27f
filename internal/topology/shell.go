package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
)

// ShellConfig names the three operator-provided commands a ShellResolver
// shells out to. Each is executed with no arguments and must exit 0,
// emitting the JSON form documented for it.
type ShellConfig struct {
	SiblingsCmd string `yaml:"siblings_cmd"`
	CousinsCmd  string `yaml:"cousins_cmd"`
	RealNodeCmd string `yaml:"real_node_cmd"`
}

// ShellResolver is the callout-based Resolver arm: each query forks the
// corresponding configured command and parses its JSON stdout.
type ShellResolver struct {
	cfg ShellConfig
}

// NewShellResolver builds a ShellResolver from the configured commands.
func NewShellResolver(cfg ShellConfig) *ShellResolver {
	return &ShellResolver{cfg: cfg}
}

// runJSON runs cmdline with no arguments, per the shell-adapter contract
// in spec.md §6. The node the query concerns is passed via CTT_NODE in
// the environment rather than as an argument.
func runJSON(cmdline, node string, out interface{}) error {
	cmd := exec.Command(cmdline)
	cmd.Env = append(cmd.Environ(), "CTT_NODE="+node)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q failed: %w (stderr: %s)", cmdline, err, stderr.String())
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("command %q produced invalid JSON: %w", cmdline, err)
	}
	return nil
}

// Siblings shells out to SiblingsCmd. On failure it returns nil — callers
// treat an empty result the same as "no topology info available", logging
// is the caller's responsibility since this type has no I/O context.
func (r *ShellResolver) Siblings(name string) []string {
	var out []string
	if err := runJSON(r.cfg.SiblingsCmd, name, &out); err != nil {
		return nil
	}
	return out
}

// Cousins shells out to CousinsCmd.
func (r *ShellResolver) Cousins(name string) []string {
	var out []string
	if err := runJSON(r.cfg.CousinsCmd, name, &out); err != nil {
		return nil
	}
	return out
}

// IsRealNode shells out to RealNodeCmd.
func (r *ShellResolver) IsRealNode(name string) bool {
	var out bool
	if err := runJSON(r.cfg.RealNodeCmd, name, &out); err != nil {
		return false
	}
	return out
}

var _ Resolver = (*ShellResolver)(nil)
