package zmcmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrVolumeStatusUnknown is returned when zmvolume output carries no
// compressed line.
var ErrVolumeStatusUnknown = errors.New("volume compression status not found in zmvolume output")

// Redacted replaces secrets in displayed command lines.
const Redacted = "*****"

// Provisioner issues configuration changes through the Zimbra tools.
type Provisioner struct {
	Runner Runner
}

// NewProvisioner returns a provisioner using runner.
func NewProvisioner(runner Runner) *Provisioner {
	return &Provisioner{Runner: runner}
}

// run executes the command and, on failure, replaces the command shown in
// the error with display so secrets never reach logs.
func (p *Provisioner) run(ctx context.Context, display string, name string, args ...string) (string, error) {
	output, err := p.Runner.Run(ctx, name, args...)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			cmdErr.Command = display
			return output, cmdErr
		}
		return output, fmt.Errorf("%s: %w", display, err)
	}
	return output, nil
}

// Zmprov runs zmprov with args.
func (p *Provisioner) Zmprov(ctx context.Context, args ...string) error {
	_, err := p.run(ctx, FormatCommand("zmprov", args...), "zmprov", args...)
	return err
}

// CreateAccountCommand returns the zmprov arguments that create an account
// followed by attribute name/value pairs.
func CreateAccountCommand(name, password string, attrs ...string) []string {
	return append([]string{"createAccount", name, password}, attrs...)
}

// CreateAccount runs zmprov createAccount. The password is redacted from
// any error.
func (p *Provisioner) CreateAccount(ctx context.Context, name, password string, attrs ...string) error {
	args := CreateAccountCommand(name, password, attrs...)
	_, err := p.run(ctx, FormatCommand("zmprov", CreateAccountCommand(name, Redacted, attrs...)...), "zmprov", args...)
	return err
}

// SetLocalConfig runs zmlocalconfig -e key=value. A sensitive value is
// redacted from the command and the output carried by any error.
func (p *Provisioner) SetLocalConfig(ctx context.Context, key, value string, sensitive bool) error {
	arg := key + "=" + value
	shown := arg
	if sensitive {
		shown = key + "=" + Redacted
	}

	_, err := p.run(ctx, FormatCommand("zmlocalconfig", "-e", shown), "zmlocalconfig", "-e", arg)
	if err != nil && sensitive && value != "" {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			cmdErr.Output = strings.ReplaceAll(cmdErr.Output, value, Redacted)
		}
	}
	return err
}

// SetZimletACL allows or denies zimlet in cos.
func (p *Provisioner) SetZimletACL(ctx context.Context, zimlet, cos string, allow bool) error {
	action := "deny"
	if allow {
		action = "allow"
	}
	args := []string{"acl", zimlet, cos, action}
	_, err := p.run(ctx, FormatCommand("zmzimletctl", args...), "zmzimletctl", args...)
	return err
}

// VolumeCompressed reports whether the store volume id has compression
// enabled.
func (p *Provisioner) VolumeCompressed(ctx context.Context, id int) (bool, error) {
	args := []string{"--list", "--id", strconv.Itoa(id)}
	output, err := p.run(ctx, FormatCommand("zmvolume", args...), "zmvolume", args...)
	if err != nil {
		return false, err
	}
	return parseVolumeCompressed(output)
}

// CompressVolume enables compression on the store volume id.
func (p *Provisioner) CompressVolume(ctx context.Context, id int) error {
	args := []string{"--edit", "--id", strconv.Itoa(id), "--compress", "true"}
	_, err := p.run(ctx, FormatCommand("zmvolume", args...), "zmvolume", args...)
	return err
}

// parseVolumeCompressed reads the "compressed:" line of zmvolume --list.
// Any value other than false counts as compressed.
func parseVolumeCompressed(output string) (bool, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "compressed:" {
			return !strings.EqualFold(fields[1], "false"), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, ErrVolumeStatusUnknown
}
