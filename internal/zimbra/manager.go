// Package zimbra compares desired Zimbra configuration with the directory,
// localconfig.xml and the store volumes, and runs the Zimbra tools only when
// they differ.
package zimbra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/localconfig"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zmcmd"
)

// Directory is the read side of the Zimbra LDAP directory. ldap.Client
// satisfies it.
type Directory interface {
	Exists(ctx context.Context, baseDN, filter string) (bool, error)
	GetAttribute(ctx context.Context, baseDN, attribute string) ([]string, error)
	SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Provisioner is the write side. *zmcmd.Provisioner satisfies it.
type Provisioner interface {
	Zmprov(ctx context.Context, args ...string) error
	CreateAccount(ctx context.Context, name, password string, attrs ...string) error
	SetLocalConfig(ctx context.Context, key, value string, sensitive bool) error
	SetZimletACL(ctx context.Context, zimlet, cos string, allow bool) error
	VolumeCompressed(ctx context.Context, id int) (bool, error)
	CompressVolume(ctx context.Context, id int) error
}

// Manager reconciles Zimbra configuration items. A Manager holds no state
// between calls and is safe for concurrent use when its Directory and
// Provisioner are.
type Manager struct {
	Directory       Directory
	Provisioner     Provisioner
	LocalConfigPath string
	DryRun          bool
}

// NewManager returns a manager reading localconfig from the default path.
func NewManager(directory Directory, provisioner Provisioner) *Manager {
	return &Manager{
		Directory:       directory,
		Provisioner:     provisioner,
		LocalConfigPath: localconfig.DefaultPath,
	}
}

// zmprovCheck describes a change made by one zmprov command, guarded by an
// LDAP presence check of (attribute=value) under base.
type zmprovCheck struct {
	name      string
	thing     string
	command   string
	display   []string // zmprov arguments as shown to the user
	base      string
	attribute string
	value     string
	apply     func(ctx context.Context) error
}

func (m *Manager) ensureZmprov(ctx context.Context, c zmprovCheck) (*Result, error) {
	result := &Result{Name: c.name, Status: StatusFailed}

	attribute := strings.TrimPrefix(c.attribute, "+")
	filter := fmt.Sprintf("(%s=%s)", attribute, goldap.EscapeFilter(c.value))

	exists, err := m.Directory.Exists(ctx, c.base, filter)
	if err != nil {
		result.Comment = fmt.Sprintf("Failed to look up %s %s: %v", c.thing, c.value, err)
		return result, fmt.Errorf("looking up %s %s: %w", c.thing, c.value, err)
	}

	if exists {
		result.Status = StatusUnchanged
		result.Comment = fmt.Sprintf("The %s %s already exists", c.thing, c.value)
		return result, nil
	}

	var old string
	if strings.HasPrefix(c.command, "modify") {
		values, err := m.Directory.GetAttribute(ctx, c.base, attribute)
		if err != nil && !errors.Is(err, ldap.ErrAttributeNotFound) {
			result.Comment = fmt.Sprintf("Failed to read current %s: %v", attribute, err)
			return result, fmt.Errorf("reading %s under %s: %w", attribute, c.base, err)
		}
		old = strings.Join(values, ", ")
	}

	result.Command = zmcmd.FormatCommand("zmprov", append([]string{c.command}, c.display...)...)
	result.Comment = result.Command
	result.Changes = map[string]Change{c.command: {Old: old, New: c.value}}

	return m.apply(ctx, result, c.apply)
}

// apply runs fn unless in dry run mode and sets the result status.
func (m *Manager) apply(ctx context.Context, result *Result, fn func(ctx context.Context) error) (*Result, error) {
	if m.DryRun {
		result.Status = StatusWouldChange
		tflog.SubsystemInfo(ctx, "zimbra", "Change required", map[string]any{
			"name":    result.Name,
			"command": result.Command,
		})
		return result, nil
	}

	if err := fn(ctx); err != nil {
		result.Status = StatusFailed
		result.Comment = fmt.Sprintf("%s: %v", result.Comment, err)
		return result, err
	}

	result.Status = StatusChanged
	tflog.SubsystemInfo(ctx, "zimbra", "Change applied", map[string]any{
		"name":    result.Name,
		"command": result.Command,
	})
	return result, nil
}

// EnsureDomain creates the domain unless it exists.
func (m *Manager) EnsureDomain(ctx context.Context, domain Domain) (*Result, error) {
	if err := Prepare(&domain); err != nil {
		return &Result{Name: domain.Name, Status: StatusFailed, Comment: err.Error()}, err
	}

	args := []string{
		domain.Name,
		"zimbraGalMaxResults", strconv.Itoa(domain.GalMaxResults),
		"zimbraGalMode", domain.GalMode,
	}

	return m.ensureZmprov(ctx, zmprovCheck{
		name:      domain.Name,
		thing:     "domain",
		command:   "createDomain",
		display:   args,
		attribute: "zimbraDomainName",
		value:     domain.Name,
		apply: func(ctx context.Context) error {
			return m.Provisioner.Zmprov(ctx, append([]string{"createDomain"}, args...)...)
		},
	})
}

// accountAttributes returns the attribute pairs passed to createAccount.
func accountAttributes(account Account) []string {
	var attrs []string
	for _, pair := range [][2]string{
		{"givenName", account.GivenName},
		{"sn", account.Sn},
		{"description", account.Description},
		{"displayName", account.DisplayName},
	} {
		if pair[1] != "" {
			attrs = append(attrs, pair[0], pair[1])
		}
	}

	hide := "TRUE"
	if account.HideInGal != nil && !*account.HideInGal {
		hide = "FALSE"
	}
	return append(attrs, "zimbraHideInGal", hide)
}

// EnsureAccount creates the account unless an entry with its address
// exists. An existing account is never modified.
func (m *Manager) EnsureAccount(ctx context.Context, account Account) (*Result, error) {
	if err := Prepare(&account); err != nil {
		return &Result{Name: account.Name, Status: StatusFailed, Comment: err.Error()}, err
	}

	attrs := accountAttributes(account)

	return m.ensureZmprov(ctx, zmprovCheck{
		name:      account.Name,
		thing:     "account",
		command:   "createAccount",
		display:   zmcmd.CreateAccountCommand(account.Name, zmcmd.Redacted, attrs...)[1:],
		attribute: "mail",
		value:     account.Name,
		apply: func(ctx context.Context) error {
			return m.Provisioner.CreateAccount(ctx, account.Name, account.Password, attrs...)
		},
	})
}

// EnsureAlias adds the alias to the account unless the address exists.
func (m *Manager) EnsureAlias(ctx context.Context, alias Alias) (*Result, error) {
	if err := Prepare(&alias); err != nil {
		return &Result{Name: alias.Alias, Status: StatusFailed, Comment: err.Error()}, err
	}

	args := []string{alias.Account, alias.Alias}

	return m.ensureZmprov(ctx, zmprovCheck{
		name:      alias.Alias,
		thing:     "alias",
		command:   "addAccountAlias",
		display:   args,
		attribute: "mail",
		value:     alias.Alias,
		apply: func(ctx context.Context) error {
			return m.Provisioner.Zmprov(ctx, append([]string{"addAccountAlias"}, args...)...)
		},
	})
}

// EnsureCosAttribute sets an attribute of a class of service.
func (m *Manager) EnsureCosAttribute(ctx context.Context, attr CosAttribute) (*Result, error) {
	if err := Prepare(&attr); err != nil {
		return &Result{Name: attr.Attribute, Status: StatusFailed, Comment: err.Error()}, err
	}

	return m.ensureModify(ctx, "cos", "modifyCos", ldap.CosDN(attr.Cos), attr.Attribute, attr.Value, attr.Cos)
}

// EnsureConfigAttribute sets a global configuration attribute.
func (m *Manager) EnsureConfigAttribute(ctx context.Context, attr ConfigAttribute) (*Result, error) {
	if err := Prepare(&attr); err != nil {
		return &Result{Name: attr.Attribute, Status: StatusFailed, Comment: err.Error()}, err
	}

	return m.ensureModify(ctx, "config", "modifyConfig", ldap.ConfigDN, attr.Attribute, attr.Value)
}

// EnsureServerAttribute sets an attribute of a mailbox server.
func (m *Manager) EnsureServerAttribute(ctx context.Context, attr ServerAttribute) (*Result, error) {
	if err := Prepare(&attr); err != nil {
		return &Result{Name: attr.Attribute, Status: StatusFailed, Comment: err.Error()}, err
	}

	return m.ensureModify(ctx, "server-config", "modifyServer", ldap.ServerDN(attr.Server), attr.Attribute, attr.Value, attr.Server)
}

// ensureModify runs "zmprov command [target] attribute value" unless
// (attribute=value) exists under base.
func (m *Manager) ensureModify(ctx context.Context, thing, command, base, attribute, value string, target ...string) (*Result, error) {
	args := append(target, attribute, value)

	return m.ensureZmprov(ctx, zmprovCheck{
		name:      attribute,
		thing:     thing,
		command:   command,
		display:   args,
		base:      base,
		attribute: attribute,
		value:     value,
		apply: func(ctx context.Context) error {
			return m.Provisioner.Zmprov(ctx, append([]string{command}, args...)...)
		},
	})
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "Enabled"
	}
	return "Disabled"
}

// EnsureZimletCos allows or denies a zimlet in a class of service.
func (m *Manager) EnsureZimletCos(ctx context.Context, zimlet ZimletCos) (*Result, error) {
	if err := Prepare(&zimlet); err != nil {
		return &Result{Name: zimlet.Zimlet, Status: StatusFailed, Comment: err.Error()}, err
	}

	result := &Result{Name: zimlet.Zimlet, Status: StatusFailed}

	enabled, err := m.ZimletCosEnabled(ctx, zimlet.Zimlet, zimlet.Cos)
	if err != nil {
		result.Comment = fmt.Sprintf("Failed to read zimlets of COS %s: %v", zimlet.Cos, err)
		return result, err
	}

	if enabled == zimlet.Enabled {
		result.Status = StatusUnchanged
		result.Comment = fmt.Sprintf("%s is already %s in the COS %s",
			zimlet.Zimlet, strings.ToLower(enabledLabel(enabled)), zimlet.Cos)
		return result, nil
	}

	action := "deny"
	if zimlet.Enabled {
		action = "allow"
	}

	result.Command = zmcmd.FormatCommand("zmzimletctl", "acl", zimlet.Zimlet, zimlet.Cos, action)
	result.Comment = result.Command
	result.Changes = map[string]Change{
		zimlet.Zimlet: {Old: enabledLabel(enabled), New: enabledLabel(zimlet.Enabled)},
	}

	return m.apply(ctx, result, func(ctx context.Context) error {
		return m.Provisioner.SetZimletACL(ctx, zimlet.Zimlet, zimlet.Cos, zimlet.Enabled)
	})
}

// EnsureVolumeCompressed enables compression on a store volume.
func (m *Manager) EnsureVolumeCompressed(ctx context.Context, volume Volume) (*Result, error) {
	if err := Prepare(&volume); err != nil {
		return &Result{Name: strconv.Itoa(volume.ID), Status: StatusFailed, Comment: err.Error()}, err
	}

	name := strconv.Itoa(volume.ID)
	result := &Result{Name: name, Status: StatusFailed}

	compressed, err := m.Provisioner.VolumeCompressed(ctx, volume.ID)
	if err != nil {
		result.Comment = fmt.Sprintf("Failed to read status of volume %d: %v", volume.ID, err)
		return result, err
	}

	if compressed {
		result.Status = StatusUnchanged
		result.Comment = fmt.Sprintf("Volume %d is already compressed", volume.ID)
		return result, nil
	}

	result.Command = zmcmd.FormatCommand("zmvolume", "--edit", "--id", name, "--compress", "true")
	result.Comment = fmt.Sprintf("Volume %d compression will be enabled", volume.ID)
	result.Changes = map[string]Change{
		name: {Old: "Compression disabled", New: "Compression enabled"},
	}

	return m.apply(ctx, result, func(ctx context.Context) error {
		return m.Provisioner.CompressVolume(ctx, volume.ID)
	})
}

// EnsureLocalConfig sets a localconfig key. An absent key is treated as
// empty and always set.
func (m *Manager) EnsureLocalConfig(ctx context.Context, lc LocalConfig) (*Result, error) {
	if err := Prepare(&lc); err != nil {
		return &Result{Name: lc.Key, Status: StatusFailed, Comment: err.Error()}, err
	}

	result := &Result{Name: lc.Key, Status: StatusFailed}

	current, err := m.LocalConfigValue(lc.Key)
	found := err == nil
	if err != nil && !errors.Is(err, localconfig.ErrKeyNotFound) {
		result.Comment = fmt.Sprintf("Failed to read localconfig: %v", err)
		return result, err
	}

	shown := func(value string) string {
		if lc.Sensitive && value != "" {
			return zmcmd.Redacted
		}
		return value
	}

	if found && current == lc.Value {
		result.Status = StatusUnchanged
		result.Comment = fmt.Sprintf("localconfig %s is already %s", lc.Key, shown(lc.Value))
		return result, nil
	}

	result.Command = zmcmd.FormatCommand("zmlocalconfig", "-e", lc.Key+"="+shown(lc.Value))
	result.Comment = result.Command
	result.Changes = map[string]Change{
		lc.Key: {Old: shown(current), New: shown(lc.Value)},
	}

	return m.apply(ctx, result, func(ctx context.Context) error {
		return m.Provisioner.SetLocalConfig(ctx, lc.Key, lc.Value, lc.Sensitive)
	})
}

// LDAPExists reports whether any entry under base matches filter.
func (m *Manager) LDAPExists(ctx context.Context, base, filter string) (bool, error) {
	return m.Directory.Exists(ctx, base, filter)
}

// LDAPGet returns the values of attribute on the first entry under base
// carrying it.
func (m *Manager) LDAPGet(ctx context.Context, base, attribute string) ([]string, error) {
	return m.Directory.GetAttribute(ctx, base, attribute)
}

// Search runs a paged search.
func (m *Manager) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return m.Directory.SearchWithPaging(ctx, req)
}

// ZimletCosEnabled reports whether "+zimlet" is among the available
// zimlets of the class of service.
func (m *Manager) ZimletCosEnabled(ctx context.Context, zimlet, cos string) (bool, error) {
	values, err := m.Directory.GetAttribute(ctx, ldap.CosDN(cos), "zimbraZimletAvailableZimlets")
	if err != nil {
		if errors.Is(err, ldap.ErrAttributeNotFound) {
			return false, nil
		}
		return false, err
	}

	want := "+" + zimlet
	for _, value := range values {
		if value == want {
			return true, nil
		}
	}
	return false, nil
}

// VolumeCompressed reports whether the store volume has compression enabled.
func (m *Manager) VolumeCompressed(ctx context.Context, id int) (bool, error) {
	return m.Provisioner.VolumeCompressed(ctx, id)
}

// LocalConfigValue reads key from localconfig.xml. The file is read on
// every call so changes made by zmlocalconfig are seen.
func (m *Manager) LocalConfigValue(key string) (string, error) {
	path := m.LocalConfigPath
	if path == "" {
		path = localconfig.DefaultPath
	}

	config, err := localconfig.Load(path)
	if err != nil {
		return "", err
	}
	return config.Get(key)
}
