// Package zmcmd runs the Zimbra command line tools used for every change to
// the Zimbra configuration.
package zmcmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Runner runs a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// CommandError reports a command that could not be started or exited with
// a non-zero status. ExitCode is -1 when no exit status is available.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	}
	if line := lastLine(e.Output); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs the Zimbra tools from BinDir as the RunAs user.
type ExecRunner struct {
	BinDir  string        `default:"/opt/zimbra/bin"`
	RunAs   string        `default:"zimbra"` // empty runs as the current user
	Timeout time.Duration `default:"10m"`    // zmprov and zmvolume start a JVM
}

// NewExecRunner returns a runner with the default Zimbra layout.
func NewExecRunner() *ExecRunner {
	runner := &ExecRunner{}
	defaults.MustSet(runner)
	return runner
}

// Run executes name with args. Arguments are passed to the program as is,
// no shell is involved.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	path := name
	if !filepath.IsAbs(name) && r.BinDir != "" {
		path = filepath.Join(r.BinDir, name)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if err := runAs(cmd, r.RunAs); err != nil {
		return "", &CommandError{Command: name, ExitCode: -1, Err: err}
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	output := string(out)

	tflog.SubsystemDebug(ctx, "zmcmd", "Command finished", map[string]any{
		"command":     name,
		"arg_count":   len(args),
		"run_as":      r.RunAs,
		"duration_ms": time.Since(start).Milliseconds(),
		"success":     err == nil,
	})

	if err != nil {
		cmdErr := &CommandError{Command: name, ExitCode: -1, Output: output, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			cmdErr.Err = ctx.Err()
		}
		return output, cmdErr
	}

	return output, nil
}

// FormatCommand renders a command line for display, quoting arguments that
// would otherwise be ambiguous.
func FormatCommand(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'\\$`") {
			arg = strconv.Quote(arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
