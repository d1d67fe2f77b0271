// Package rexec runs the snapshot worker as a child process and speaks its line protocol.
package rexec

import "github.com/pkg/errors"

// ProcessConfig describes how to launch a worker process.
type ProcessConfig struct {
	Name        string            `json:"name"`
	Args        []string          `json:"args"`
	CWD         string            `json:"cwd"`
	Environment map[string]string `json:"env,omitempty"`
	// Log forwards the process's stderr at info level instead of debug.
	Log bool `json:"log"`
}

// Validate ensures all parts of the config are valid.
func (config ProcessConfig) Validate() error {
	if config.Name == "" {
		return errors.New("process name is required")
	}
	return nil
}
