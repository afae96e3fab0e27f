package scheduler

import "fmt"

// Config is the tagged union of scheduler backends recognized in the
// configuration document (spec.md §6): the native scheduler sentinel, or
// a shell-callout trio.
type Config struct {
	Native       bool         `yaml:"Native,omitempty"`
	Shell        *ShellConfig `yaml:"Shell,omitempty"`
	NativeConfig NativeConfig `yaml:"NativeConfig,omitempty"`
}

// New dispatches to the configured Adapter arm.
func New(cfg Config) (Adapter, error) {
	switch {
	case cfg.Shell != nil:
		return NewShellAdapter(*cfg.Shell), nil
	case cfg.Native:
		return NewNativeAdapter(cfg.NativeConfig), nil
	default:
		return nil, fmt.Errorf("scheduler: config names neither the native scheduler nor a shell scheduler")
	}
}
