//go:build !unix

package zmcmd

import (
	"fmt"
	"os/exec"
)

func runAs(_ *exec.Cmd, username string) error {
	if username == "" {
		return nil
	}
	return fmt.Errorf("running commands as %s is not supported on this platform", username)
}
