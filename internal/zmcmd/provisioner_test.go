package zmcmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunner implements Runner for testing.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	callArgs := append([]any{ctx, name}, toAny(args)...)
	ret := m.Called(callArgs...)
	return ret.String(0), ret.Error(1)
}

func toAny(args []string) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = arg
	}
	return out
}

const zmvolumeList = `   Volume id: 1
        name: message1
        type: primaryMessage
        path: /opt/zimbra/store
  compressed: %s
     current: true
`

func TestProvisioner_Commands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(*Provisioner) error
		cmd  string
		args []string
	}{
		{
			name: "zmprov",
			call: func(p *Provisioner) error {
				return p.Zmprov(ctx, "createDomain", "example.com", "zimbraGalMaxResults", "500")
			},
			cmd:  "zmprov",
			args: []string{"createDomain", "example.com", "zimbraGalMaxResults", "500"},
		},
		{
			name: "localconfig",
			call: func(p *Provisioner) error {
				return p.SetLocalConfig(ctx, "antispam_enable_rule_updates", "true", false)
			},
			cmd:  "zmlocalconfig",
			args: []string{"-e", "antispam_enable_rule_updates=true"},
		},
		{
			name: "zimlet allow",
			call: func(p *Provisioner) error { return p.SetZimletACL(ctx, "com_zimbra_phone", "default", true) },
			cmd:  "zmzimletctl",
			args: []string{"acl", "com_zimbra_phone", "default", "allow"},
		},
		{
			name: "zimlet deny",
			call: func(p *Provisioner) error { return p.SetZimletACL(ctx, "com_zimbra_phone", "default", false) },
			cmd:  "zmzimletctl",
			args: []string{"acl", "com_zimbra_phone", "default", "deny"},
		},
		{
			name: "compress volume",
			call: func(p *Provisioner) error { return p.CompressVolume(ctx, 2) },
			cmd:  "zmvolume",
			args: []string{"--edit", "--id", "2", "--compress", "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			runner.On("Run", append([]any{ctx, tt.cmd}, toAny(tt.args)...)...).Return("", nil)

			require.NoError(t, tt.call(NewProvisioner(runner)))
			runner.AssertExpectations(t)
		})
	}
}

func TestProvisioner_CreateAccountRedactsPassword(t *testing.T) {
	ctx := context.Background()
	runner := &MockRunner{}
	runner.On("Run", ctx, "zmprov", "createAccount", "user@example.com", "hunter2", "displayName", "Jane Doe").
		Return("ERROR: account.ACCOUNT_EXISTS", &CommandError{Command: "zmprov", ExitCode: 2, Output: "ERROR: account.ACCOUNT_EXISTS"})

	err := NewProvisioner(runner).CreateAccount(ctx, "user@example.com", "hunter2", "displayName", "Jane Doe")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, cmdErr.Command, Redacted)
	assert.Contains(t, cmdErr.Command, `"Jane Doe"`)
	runner.AssertExpectations(t)
}

func TestProvisioner_SetLocalConfigRedactsSensitiveValue(t *testing.T) {
	ctx := context.Background()
	runner := &MockRunner{}
	runner.On("Run", ctx, "zmlocalconfig", "-e", "zimbra_ldap_password=S3CRET").
		Return("invalid value S3CRET", &CommandError{Command: "zmlocalconfig", ExitCode: 1, Output: "invalid value S3CRET"})

	err := NewProvisioner(runner).SetLocalConfig(ctx, "zimbra_ldap_password", "S3CRET", true)
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "zmlocalconfig -e zimbra_ldap_password="+Redacted, cmdErr.Command)
	assert.NotContains(t, err.Error(), "S3CRET")
	assert.Contains(t, err.Error(), "invalid value "+Redacted)
	runner.AssertExpectations(t)
}

func TestProvisioner_NonCommandErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	runner := &MockRunner{}
	runner.On("Run", ctx, "zmlocalconfig", "-e", "a=b").Return("", errors.New("boom"))

	err := NewProvisioner(runner).SetLocalConfig(ctx, "a", "b", false)
	assert.ErrorContains(t, err, "zmlocalconfig -e a=b: boom")
}

func TestProvisioner_VolumeCompressed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		output  string
		want    bool
		wantErr error
	}{
		{"compressed", fmtList("true"), true, nil},
		{"not compressed", fmtList("false"), false, nil},
		{"unknown value counts as compressed", fmtList("yes"), true, nil},
		{"no compressed line", "   Volume id: 1\n        name: message1\n", false, ErrVolumeStatusUnknown},
		{"empty output", "", false, ErrVolumeStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			runner.On("Run", ctx, "zmvolume", "--list", "--id", "1").Return(tt.output, nil)

			got, err := NewProvisioner(runner).VolumeCompressed(ctx, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvisioner_VolumeCompressedCommandFailure(t *testing.T) {
	ctx := context.Background()
	runner := &MockRunner{}
	runner.On("Run", ctx, "zmvolume", "--list", "--id", "9").
		Return("ERROR: store.NO_SUCH_VOLUME", &CommandError{Command: "zmvolume", ExitCode: 1})

	_, err := NewProvisioner(runner).VolumeCompressed(ctx, 9)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "zmvolume --list --id 9", cmdErr.Command)
}

func fmtList(value string) string {
	return fmt.Sprintf(zmvolumeList, value)
}

func TestFormatCommand(t *testing.T) {
	assert.Equal(t, "zmprov modifyConfig zimbraMtaMaxMessageSize 10240000",
		FormatCommand("zmprov", "modifyConfig", "zimbraMtaMaxMessageSize", "10240000"))
	assert.Equal(t, `zmprov createAccount a@example.com "" description "Shared mailbox"`,
		FormatCommand("zmprov", "createAccount", "a@example.com", "", "description", "Shared mailbox"))
}

func TestCommandError_Error(t *testing.T) {
	err := &CommandError{Command: "zmprov ca x", ExitCode: 2, Output: "line one\nERROR: account.ACCOUNT_EXISTS\n"}
	assert.Equal(t, "zmprov ca x exited with status 2: ERROR: account.ACCOUNT_EXISTS", err.Error())

	startErr := &CommandError{Command: "zmprov", ExitCode: -1, Err: errors.New("no such file")}
	assert.Equal(t, "zmprov failed: no such file", startErr.Error())
	assert.ErrorIs(t, startErr, startErr.Err)
}
