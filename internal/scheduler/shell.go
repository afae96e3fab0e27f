package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/NCAR/ctt-server/internal/types"
)

// ShellConfig names the three operator-provided commands a ShellAdapter
// shells out to, per spec.md §6.
type ShellConfig struct {
	StatusCmd  string `yaml:"status_cmd"`
	ReleaseCmd string `yaml:"release_cmd"`
	OfflineCmd string `yaml:"offline_cmd"`
}

// statusEntry is the per-node [TargetStatus, comment] pair status_cmd
// emits, keyed by node name.
type statusEntry [2]string

// ShellAdapter is the callout-based Adapter arm: each configured command
// is run with no arguments and must exit 0 and emit the documented JSON.
type ShellAdapter struct {
	cfg ShellConfig
}

// NewShellAdapter builds a ShellAdapter from the configured commands.
func NewShellAdapter(cfg ShellConfig) *ShellAdapter {
	return &ShellAdapter{cfg: cfg}
}

func (a *ShellAdapter) run(ctx context.Context, cmdline string, env ...string) (string, error) {
	cmd := exec.CommandContext(ctx, cmdline)
	cmd.Env = append(cmd.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", WrapTransientError(fmt.Errorf("%s: %w (stderr: %s)", cmdline, err, stderr.String()))
	}
	return stdout.String(), nil
}

// NodesStatus shells out to StatusCmd and parses its
// {name: [TargetStatus, comment]} JSON object.
func (a *ShellAdapter) NodesStatus(ctx context.Context) (map[string]NodeState, error) {
	stdout, err := a.run(ctx, a.cfg.StatusCmd)
	if err != nil {
		return nil, fmt.Errorf("shell status command failed: %w", err)
	}
	var raw map[string]statusEntry
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return nil, fmt.Errorf("shell status command returned invalid JSON: %w", err)
	}
	out := make(map[string]NodeState, len(raw))
	for name, e := range raw {
		status := types.TargetStatus(e[0])
		if !status.Valid() {
			return nil, fmt.Errorf("shell status command reported unknown status %q for %s", e[0], name)
		}
		out[name] = NodeState{Status: status, Comment: e[1]}
	}
	return out, nil
}

// Offline shells out to OfflineCmd, passing the target node and comment
// via environment, per the CTT_NODE convention topology's shell resolver
// uses for the same "no arguments" contract (spec.md §6).
func (a *ShellAdapter) Offline(ctx context.Context, name, comment string) error {
	_, err := a.run(ctx, a.cfg.OfflineCmd, "CTT_NODE="+name, "CTT_COMMENT="+comment)
	return err
}

// Release shells out to ReleaseCmd with the target node in the environment.
func (a *ShellAdapter) Release(ctx context.Context, name string) error {
	_, err := a.run(ctx, a.cfg.ReleaseCmd, "CTT_NODE="+name)
	return err
}

var _ Adapter = (*ShellAdapter)(nil)
