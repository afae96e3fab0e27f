package topology

import "fmt"

// Config is the tagged union of topology backends recognized in the
// cluster configuration document (spec.md §6): either a list of regex
// NodeTypes or a shell-callout trio.
type Config struct {
	Regex []NodeType   `yaml:"Regex,omitempty"`
	Shell *ShellConfig `yaml:"Shell,omitempty"`
}

// New dispatches to the configured Resolver arm.
func New(cfg Config) (Resolver, error) {
	switch {
	case cfg.Shell != nil:
		return NewShellResolver(*cfg.Shell), nil
	case cfg.Regex != nil:
		return NewRegexResolver(cfg.Regex), nil
	default:
		return nil, fmt.Errorf("topology: config names neither a regex nor a shell cluster")
	}
}
