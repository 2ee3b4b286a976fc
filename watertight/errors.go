package watertight

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid or missing parameter. It is raised
// before any per-sample work begins.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Param, e.Reason)
}

func configErrorf(param, format string, args ...interface{}) error {
	return &ConfigurationError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

// ExternalToolError reports a repair subprocess that failed or produced
// no output.
type ExternalToolError struct {
	Tool     string
	Args     []string
	ExitCode int // -1 if the process did not exit normally
	Stderr   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%v %v: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code %v)", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }
