package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// rawNode is the per-node attribute triad a native batch-scheduler query
// exposes: the vendor's raw state string, whether the node has running
// jobs, and its free-text comment. This mirrors the attrl triad
// (state/jobs/comment) the reference implementation reads off its
// scheduler handle.
type rawNode struct {
	State   string `json:"state"`
	Jobs    bool   `json:"jobs"`
	Comment string `json:"comment"`
}

// NativeConfig configures the NativeAdapter's three scheduler-binary
// invocations and a per-call timeout so a wedged scheduler cannot stall
// the reconciler indefinitely.
type NativeConfig struct {
	StatusCmd  string        `yaml:"status_cmd"`  // queries every node; stdout is JSON {name: rawNode}
	OfflineCmd string        `yaml:"offline_cmd"`  // args: name, comment
	ReleaseCmd string        `yaml:"release_cmd"`  // args: name
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// NativeAdapter drives a real batch scheduler's query/offline/release
// binaries. It is the CTT analogue of the reference implementation's
// PbsScheduler: one handle, rebuilt by the caller on credential expiry.
type NativeAdapter struct {
	cfg NativeConfig
}

// NewNativeAdapter builds a NativeAdapter from cfg, defaulting Timeout to
// 30s if unset.
func NewNativeAdapter(cfg NativeConfig) *NativeAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &NativeAdapter{cfg: cfg}
}

func (a *NativeAdapter) run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", WrapTransientError(fmt.Errorf("%s: %w (stderr: %s)", name, err, stderr.String()))
	}
	return stdout.String(), nil
}

// NodesStatus queries every node and classifies it per Classify.
func (a *NativeAdapter) NodesStatus(ctx context.Context) (map[string]NodeState, error) {
	stdout, err := a.run(ctx, a.cfg.StatusCmd)
	if err != nil {
		return nil, fmt.Errorf("scheduler status query failed: %w", err)
	}
	var raw map[string]rawNode
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return nil, fmt.Errorf("scheduler status query returned invalid JSON: %w", err)
	}
	out := make(map[string]NodeState, len(raw))
	for name, n := range raw {
		out[name] = NodeState{Status: Classify(n.State, n.Jobs), Comment: n.Comment}
	}
	return out, nil
}

// Offline drains name with comment attached.
func (a *NativeAdapter) Offline(ctx context.Context, name, comment string) error {
	_, err := a.run(ctx, a.cfg.OfflineCmd, name, comment)
	return err
}

// Release clears any offline mark on name.
func (a *NativeAdapter) Release(ctx context.Context, name string) error {
	_, err := a.run(ctx, a.cfg.ReleaseCmd, name)
	return err
}

var _ Adapter = (*NativeAdapter)(nil)
