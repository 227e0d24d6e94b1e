package zimbra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zmcmd"
)

// MockDirectory implements Directory for testing.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Exists(ctx context.Context, baseDN, filter string) (bool, error) {
	args := m.Called(ctx, baseDN, filter)
	return args.Bool(0), args.Error(1)
}

func (m *MockDirectory) GetAttribute(ctx context.Context, baseDN, attribute string) ([]string, error) {
	args := m.Called(ctx, baseDN, attribute)
	if values := args.Get(0); values != nil {
		return values.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectory) SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	if result := args.Get(0); result != nil {
		return result.(*ldap.SearchResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProvisioner implements Provisioner for testing. Variadic arguments
// are recorded as one []string.
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Zmprov(ctx context.Context, args ...string) error {
	return m.Called(ctx, args).Error(0)
}

func (m *MockProvisioner) CreateAccount(ctx context.Context, name, password string, attrs ...string) error {
	return m.Called(ctx, name, password, attrs).Error(0)
}

func (m *MockProvisioner) SetLocalConfig(ctx context.Context, key, value string, sensitive bool) error {
	return m.Called(ctx, key, value, sensitive).Error(0)
}

func (m *MockProvisioner) SetZimletACL(ctx context.Context, zimlet, cos string, allow bool) error {
	return m.Called(ctx, zimlet, cos, allow).Error(0)
}

func (m *MockProvisioner) VolumeCompressed(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockProvisioner) CompressVolume(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

// echoFailRunner fails every command with status 1, echoing its arguments
// in the output.
type echoFailRunner struct{}

func (echoFailRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	output := "error: " + strings.Join(args, " ")
	return output, &zmcmd.CommandError{Command: name, ExitCode: 1, Output: output}
}

func newTestManager() (*Manager, *MockDirectory, *MockProvisioner) {
	directory := &MockDirectory{}
	provisioner := &MockProvisioner{}
	return NewManager(directory, provisioner), directory, provisioner
}

func TestEnsureDomain_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()

	directory.On("Exists", ctx, "", "(zimbraDomainName=example.com)").Return(true, nil)

	result, err := m.EnsureDomain(ctx, Domain{Name: "example.com"})
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, result.Status)
	assert.Equal(t, "The domain example.com already exists", result.Comment)
	assert.Empty(t, result.Changes)
	provisioner.AssertNotCalled(t, "Zmprov", mock.Anything, mock.Anything)
}

func TestEnsureDomain_Creates(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()

	directory.On("Exists", ctx, "", "(zimbraDomainName=example.com)").Return(false, nil)
	provisioner.On("Zmprov", ctx, []string{
		"createDomain", "example.com",
		"zimbraGalMaxResults", "500",
		"zimbraGalMode", "zimbra",
	}).Return(nil)

	result, err := m.EnsureDomain(ctx, Domain{Name: " example.com "})
	require.NoError(t, err)

	assert.Equal(t, StatusChanged, result.Status)
	assert.Equal(t, Change{Old: "", New: "example.com"}, result.Changes["createDomain"])
	assert.Contains(t, result.Comment, "zmprov createDomain example.com")
	provisioner.AssertExpectations(t)
}

func TestEnsureDomain_DryRun(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()
	m.DryRun = true

	directory.On("Exists", ctx, "", "(zimbraDomainName=example.com)").Return(false, nil)

	result, err := m.EnsureDomain(ctx, Domain{Name: "example.com", GalMode: "both", GalMaxResults: 100})
	require.NoError(t, err)

	assert.Equal(t, StatusWouldChange, result.Status)
	assert.Contains(t, result.Command, "zimbraGalMaxResults 100 zimbraGalMode both")
	assert.True(t, result.Succeeded())
	provisioner.AssertNotCalled(t, "Zmprov", mock.Anything, mock.Anything)
}

func TestEnsureDomain_Invalid(t *testing.T) {
	m, directory, _ := newTestManager()

	result, err := m.EnsureDomain(context.Background(), Domain{Name: "example.com", GalMode: "openldap"})
	require.Error(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, err.Error(), "invalid domain")
	directory.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureDomain_LookupFailure(t *testing.T) {
	ctx := context.Background()
	m, directory, _ := newTestManager()

	lookupErr := &ldap.PagingError{Page: 1, Err: ldap.ErrPagingControlMissing}
	directory.On("Exists", ctx, "", "(zimbraDomainName=example.com)").Return(false, lookupErr)

	result, err := m.EnsureDomain(ctx, Domain{Name: "example.com"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ldap.ErrPagingControlMissing)
	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Succeeded())
}

func TestEnsureAccount_CreatesWithRedactedCommand(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()

	directory.On("Exists", ctx, "", "(mail=jdoe@example.com)").Return(false, nil)
	provisioner.On("CreateAccount", ctx, "jdoe@example.com", "s3cret", []string{
		"givenName", "John",
		"sn", "Doe",
		"displayName", "John Doe",
		"zimbraHideInGal", "TRUE",
	}).Return(nil)

	result, err := m.EnsureAccount(ctx, Account{
		Name:        "jdoe@example.com",
		Password:    "s3cret",
		GivenName:   "John",
		Sn:          "Doe",
		DisplayName: "John Doe",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusChanged, result.Status)
	assert.NotContains(t, result.Command, "s3cret")
	assert.Contains(t, result.Command, "createAccount jdoe@example.com *****")
	provisioner.AssertExpectations(t)
}

func TestAccountAttributes(t *testing.T) {
	visible := false

	assert.Equal(t, []string{"zimbraHideInGal", "TRUE"}, accountAttributes(Account{}))
	assert.Equal(t,
		[]string{"sn", "Doe", "description", "Service account", "zimbraHideInGal", "FALSE"},
		accountAttributes(Account{Sn: "Doe", Description: "Service account", HideInGal: &visible}),
	)
}

func TestEnsureAlias_CommandFailure(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()

	directory.On("Exists", ctx, "", "(mail=info@example.com)").Return(false, nil)
	provisioner.On("Zmprov", ctx, []string{"addAccountAlias", "jdoe@example.com", "info@example.com"}).
		Return(errors.New("account.NO_SUCH_ACCOUNT"))

	result, err := m.EnsureAlias(ctx, Alias{Alias: "info@example.com", Account: "jdoe@example.com"})
	require.Error(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Comment, "account.NO_SUCH_ACCOUNT")
}

func TestEnsureCosAttribute_ReadsOldValue(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()

	base := ldap.CosDN("default")
	directory.On("Exists", ctx, base, "(zimbraFeatureCalendarEnabled=FALSE)").Return(false, nil)
	directory.On("GetAttribute", ctx, base, "zimbraFeatureCalendarEnabled").Return([]string{"TRUE"}, nil)
	provisioner.On("Zmprov", ctx, []string{"modifyCos", "default", "zimbraFeatureCalendarEnabled", "FALSE"}).Return(nil)

	result, err := m.EnsureCosAttribute(ctx, CosAttribute{Attribute: "zimbraFeatureCalendarEnabled", Value: "FALSE"})
	require.NoError(t, err)

	assert.Equal(t, StatusChanged, result.Status)
	assert.Equal(t, Change{Old: "TRUE", New: "FALSE"}, result.Changes["modifyCos"])
	assert.Equal(t, "zimbraFeatureCalendarEnabled", result.Name)
}

func TestEnsureConfigAttribute_MultiValueAdd(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()

	directory.On("Exists", ctx, ldap.ConfigDN, "(zimbraMtaMyNetworks=10.0.0.0/8)").Return(false, nil)
	directory.On("GetAttribute", ctx, ldap.ConfigDN, "zimbraMtaMyNetworks").Return(nil, ldap.ErrAttributeNotFound)
	provisioner.On("Zmprov", ctx, []string{"modifyConfig", "+zimbraMtaMyNetworks", "10.0.0.0/8"}).Return(nil)

	result, err := m.EnsureConfigAttribute(ctx, ConfigAttribute{Attribute: "+zimbraMtaMyNetworks", Value: "10.0.0.0/8"})
	require.NoError(t, err)

	assert.Equal(t, StatusChanged, result.Status)
	assert.Equal(t, Change{Old: "", New: "10.0.0.0/8"}, result.Changes["modifyConfig"])
}

func TestEnsureConfigAttribute_EscapesFilterValue(t *testing.T) {
	ctx := context.Background()
	m, directory, _ := newTestManager()

	directory.On("Exists", ctx, ldap.ConfigDN, `(zimbraMtaRestriction=reject\2a)`).Return(true, nil)

	result, err := m.EnsureConfigAttribute(ctx, ConfigAttribute{Attribute: "zimbraMtaRestriction", Value: "reject*"})
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, result.Status)
	assert.Equal(t, "The config reject* already exists", result.Comment)
}

func TestEnsureServerAttribute(t *testing.T) {
	ctx := context.Background()
	m, directory, provisioner := newTestManager()
	m.DryRun = true

	base := ldap.ServerDN("mail.example.com")
	directory.On("Exists", ctx, base, "(zimbraImapMaxConnections=500)").Return(false, nil)
	directory.On("GetAttribute", ctx, base, "zimbraImapMaxConnections").Return([]string{"200"}, nil)

	result, err := m.EnsureServerAttribute(ctx, ServerAttribute{
		Server:    "mail.example.com",
		Attribute: "zimbraImapMaxConnections",
		Value:     "500",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusWouldChange, result.Status)
	assert.Equal(t, "zmprov modifyServer mail.example.com zimbraImapMaxConnections 500", result.Command)
	assert.Equal(t, Change{Old: "200", New: "500"}, result.Changes["modifyServer"])
	provisioner.AssertNotCalled(t, "Zmprov", mock.Anything, mock.Anything)
}

func TestEnsureZimletCos(t *testing.T) {
	ctx := context.Background()
	base := ldap.CosDN("default")

	t.Run("already disabled", func(t *testing.T) {
		m, directory, provisioner := newTestManager()
		directory.On("GetAttribute", ctx, base, "zimbraZimletAvailableZimlets").
			Return([]string{"!com_zimbra_date", "+com_zimbra_url"}, nil)

		result, err := m.EnsureZimletCos(ctx, ZimletCos{Zimlet: "com_zimbra_date"})
		require.NoError(t, err)

		assert.Equal(t, StatusUnchanged, result.Status)
		assert.Equal(t, "com_zimbra_date is already disabled in the COS default", result.Comment)
		provisioner.AssertNotCalled(t, "SetZimletACL", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("disables enabled zimlet", func(t *testing.T) {
		m, directory, provisioner := newTestManager()
		directory.On("GetAttribute", ctx, base, "zimbraZimletAvailableZimlets").
			Return([]string{"+com_zimbra_url"}, nil)
		provisioner.On("SetZimletACL", ctx, "com_zimbra_url", "default", false).Return(nil)

		result, err := m.EnsureZimletCos(ctx, ZimletCos{Zimlet: "com_zimbra_url"})
		require.NoError(t, err)

		assert.Equal(t, StatusChanged, result.Status)
		assert.Equal(t, "zmzimletctl acl com_zimbra_url default deny", result.Comment)
		assert.Equal(t, Change{Old: "Enabled", New: "Disabled"}, result.Changes["com_zimbra_url"])
		provisioner.AssertExpectations(t)
	})

	t.Run("attribute absent counts as disabled", func(t *testing.T) {
		m, directory, provisioner := newTestManager()
		directory.On("GetAttribute", ctx, ldap.CosDN("staff"), "zimbraZimletAvailableZimlets").
			Return(nil, ldap.ErrAttributeNotFound)
		provisioner.On("SetZimletACL", ctx, "com_zimbra_url", "staff", true).Return(nil)

		result, err := m.EnsureZimletCos(ctx, ZimletCos{Zimlet: "com_zimbra_url", Cos: "staff", Enabled: true})
		require.NoError(t, err)

		assert.Equal(t, StatusChanged, result.Status)
		assert.Equal(t, Change{Old: "Disabled", New: "Enabled"}, result.Changes["com_zimbra_url"])
	})
}

func TestEnsureVolumeCompressed(t *testing.T) {
	ctx := context.Background()

	t.Run("already compressed", func(t *testing.T) {
		m, _, provisioner := newTestManager()
		provisioner.On("VolumeCompressed", ctx, 1).Return(true, nil)

		result, err := m.EnsureVolumeCompressed(ctx, Volume{})
		require.NoError(t, err)

		assert.Equal(t, StatusUnchanged, result.Status)
		assert.Equal(t, "Volume 1 is already compressed", result.Comment)
	})

	t.Run("enables compression", func(t *testing.T) {
		m, _, provisioner := newTestManager()
		provisioner.On("VolumeCompressed", ctx, 3).Return(false, nil)
		provisioner.On("CompressVolume", ctx, 3).Return(nil)

		result, err := m.EnsureVolumeCompressed(ctx, Volume{ID: 3})
		require.NoError(t, err)

		assert.Equal(t, StatusChanged, result.Status)
		assert.Equal(t, "Volume 3 compression will be enabled", result.Comment)
		assert.Equal(t, Change{Old: "Compression disabled", New: "Compression enabled"}, result.Changes["3"])
		provisioner.AssertExpectations(t)
	})

	t.Run("status unknown", func(t *testing.T) {
		m, _, provisioner := newTestManager()
		provisioner.On("VolumeCompressed", ctx, 1).Return(false, errors.New("zmvolume: no such volume"))

		result, err := m.EnsureVolumeCompressed(ctx, Volume{ID: 1})
		require.Error(t, err)
		assert.Equal(t, StatusFailed, result.Status)
	})
}

func writeLocalConfig(t *testing.T, keys map[string]string) string {
	t.Helper()

	content := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<localconfig>\n"
	for key, value := range keys {
		content += "  <key name=\"" + key + "\">\n    <value>" + value + "</value>\n  </key>\n"
	}
	content += "</localconfig>\n"

	path := filepath.Join(t.TempDir(), "localconfig.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEnsureLocalConfig(t *testing.T) {
	ctx := context.Background()
	path := writeLocalConfig(t, map[string]string{
		"antispam_enable_rule_updates": "true",
		"zimbra_mysql_password":        "old",
	})

	t.Run("already set", func(t *testing.T) {
		m, _, provisioner := newTestManager()
		m.LocalConfigPath = path

		result, err := m.EnsureLocalConfig(ctx, LocalConfig{Key: "antispam_enable_rule_updates", Value: "true"})
		require.NoError(t, err)

		assert.Equal(t, StatusUnchanged, result.Status)
		assert.Equal(t, "localconfig antispam_enable_rule_updates is already true", result.Comment)
		provisioner.AssertNotCalled(t, "SetLocalConfig", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing key is set", func(t *testing.T) {
		m, _, provisioner := newTestManager()
		m.LocalConfigPath = path
		provisioner.On("SetLocalConfig", ctx, "antivirus_enable_rule_updates", "false", false).Return(nil)

		result, err := m.EnsureLocalConfig(ctx, LocalConfig{Key: "antivirus_enable_rule_updates", Value: "false"})
		require.NoError(t, err)

		assert.Equal(t, StatusChanged, result.Status)
		assert.Equal(t, "zmlocalconfig -e antivirus_enable_rule_updates=false", result.Comment)
		assert.Equal(t, Change{Old: "", New: "false"}, result.Changes["antivirus_enable_rule_updates"])
	})

	t.Run("sensitive values are redacted", func(t *testing.T) {
		m, _, provisioner := newTestManager()
		m.LocalConfigPath = path
		provisioner.On("SetLocalConfig", ctx, "zimbra_mysql_password", "new", true).Return(nil)

		result, err := m.EnsureLocalConfig(ctx, LocalConfig{Key: "zimbra_mysql_password", Value: "new", Sensitive: true})
		require.NoError(t, err)

		assert.Equal(t, StatusChanged, result.Status)
		assert.NotContains(t, result.Comment, "new")
		assert.Equal(t, Change{Old: "*****", New: "*****"}, result.Changes["zimbra_mysql_password"])
		provisioner.AssertExpectations(t)
	})

	t.Run("failed sensitive command is redacted", func(t *testing.T) {
		m, _, _ := newTestManager()
		m.LocalConfigPath = path
		m.Provisioner = zmcmd.NewProvisioner(echoFailRunner{})

		result, err := m.EnsureLocalConfig(ctx, LocalConfig{Key: "zimbra_mysql_password", Value: "S3CRET", Sensitive: true})
		require.Error(t, err)

		assert.Equal(t, StatusFailed, result.Status)
		assert.NotContains(t, result.Comment, "S3CRET")
		assert.NotContains(t, err.Error(), "S3CRET")
		assert.Contains(t, result.Comment, "zimbra_mysql_password=*****")
	})

	t.Run("unreadable file", func(t *testing.T) {
		m, _, _ := newTestManager()
		m.LocalConfigPath = filepath.Join(t.TempDir(), "missing.xml")

		result, err := m.EnsureLocalConfig(ctx, LocalConfig{Key: "ldap_port", Value: "389"})
		require.Error(t, err)
		assert.Equal(t, StatusFailed, result.Status)
	})
}

func TestZimletCosEnabled_DirectoryError(t *testing.T) {
	ctx := context.Background()
	m, directory, _ := newTestManager()

	directory.On("GetAttribute", ctx, ldap.CosDN("default"), "zimbraZimletAvailableZimlets").
		Return(nil, errors.New("connection reset"))

	_, err := m.ZimletCosEnabled(ctx, "com_zimbra_url", "default")
	assert.Error(t, err)
}

func TestSearch_Delegates(t *testing.T) {
	ctx := context.Background()
	m, directory, _ := newTestManager()

	req := &ldap.SearchRequest{BaseDN: ldap.ZimbraBaseDN, Filter: "(objectClass=zimbraCOS)"}
	directory.On("SearchWithPaging", ctx, req).Return(&ldap.SearchResult{Total: 2, Pages: 1}, nil)

	result, err := m.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}
