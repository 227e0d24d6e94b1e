package zimbra

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Status is the outcome of reconciling one item.
type Status string

const (
	StatusUnchanged   Status = "unchanged"
	StatusChanged     Status = "changed"
	StatusWouldChange Status = "would-change"
	StatusFailed      Status = "failed"
)

// Change records a value before and after reconciliation.
type Change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Result describes what reconciling one item did or, in dry run mode,
// would do.
type Result struct {
	Name    string            `json:"name"`
	Status  Status            `json:"status"`
	Changes map[string]Change `json:"changes,omitempty"`
	Comment string            `json:"comment"`
	Command string            `json:"command,omitempty"`
}

// Succeeded reports whether the item is in, or would reach, the desired state.
func (r *Result) Succeeded() bool {
	return r.Status != StatusFailed
}

// Domain is a mail domain created with zmprov createDomain.
type Domain struct {
	Name          string `toml:"name" validate:"required,fqdn"`
	GalMaxResults int    `toml:"gal_max_results" default:"500" validate:"gte=0"`
	GalMode       string `toml:"gal_mode" default:"zimbra" validate:"oneof=zimbra ldap both"`
}

// Account is a mailbox created with zmprov createAccount. The optional
// attributes only apply at creation.
type Account struct {
	Name        string `toml:"name" validate:"required,email"`
	Password    string `toml:"password" validate:"required"`
	GivenName   string `toml:"given_name"`
	Sn          string `toml:"sn"`
	DisplayName string `toml:"display_name"`
	Description string `toml:"description"`
	HideInGal   *bool  `toml:"hide_in_gal" default:"true"`
}

// Alias is an additional address of an existing account.
type Alias struct {
	Alias   string `toml:"alias" validate:"required,email"`
	Account string `toml:"account" validate:"required,email"`
}

// CosAttribute is one attribute value of a class of service.
type CosAttribute struct {
	Cos       string `toml:"cos" default:"default" validate:"required"`
	Attribute string `toml:"attribute" validate:"required,ldapattr"`
	Value     string `toml:"value" validate:"required"`
}

// ConfigAttribute is one global configuration attribute value. A leading
// "+" on Attribute adds a value to a multi-valued attribute.
type ConfigAttribute struct {
	Attribute string `toml:"attribute" validate:"required,ldapattr"`
	Value     string `toml:"value" validate:"required"`
}

// ServerAttribute is one attribute value of a mailbox server.
type ServerAttribute struct {
	Server    string `toml:"server" validate:"required,hostname_rfc1123"`
	Attribute string `toml:"attribute" validate:"required,ldapattr"`
	Value     string `toml:"value" validate:"required"`
}

// ZimletCos enables or disables a zimlet in a class of service.
type ZimletCos struct {
	Zimlet  string `toml:"zimlet" validate:"required"`
	Cos     string `toml:"cos" default:"default" validate:"required"`
	Enabled bool   `toml:"enabled"`
}

// Volume is a message store volume that should be compressed.
type Volume struct {
	ID int `toml:"id" default:"1" validate:"gte=1"`
}

// LocalConfig is one localconfig key. Sensitive values are redacted from
// results.
type LocalConfig struct {
	Key       string `toml:"key" validate:"required,lckey"`
	Value     string `toml:"value"`
	Sensitive bool   `toml:"sensitive"`
}

var (
	attributeName  = regexp.MustCompile(`^\+?[A-Za-z][A-Za-z0-9-]*$`)
	localConfigKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, pattern := range map[string]*regexp.Regexp{
		"ldapattr": attributeName,
		"lckey":    localConfigKey,
	} {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return pattern.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	return v
}

// Prepare trims names, applies defaults and validates item, which must be
// a pointer to one of the item types.
func Prepare(item any) error {
	trimStrings(item)
	if err := defaults.Set(item); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("invalid %s: %w", itemKind(item), err)
	}
	return nil
}

// trimStrings removes surrounding whitespace from names. Values and
// passwords are left alone.
func trimStrings(item any) {
	switch v := item.(type) {
	case *Domain:
		v.Name = strings.TrimSpace(v.Name)
	case *Account:
		v.Name = strings.TrimSpace(v.Name)
	case *Alias:
		v.Alias = strings.TrimSpace(v.Alias)
		v.Account = strings.TrimSpace(v.Account)
	case *CosAttribute:
		v.Cos = strings.TrimSpace(v.Cos)
		v.Attribute = strings.TrimSpace(v.Attribute)
	case *ConfigAttribute:
		v.Attribute = strings.TrimSpace(v.Attribute)
	case *ServerAttribute:
		v.Server = strings.TrimSpace(v.Server)
		v.Attribute = strings.TrimSpace(v.Attribute)
	case *ZimletCos:
		v.Zimlet = strings.TrimSpace(v.Zimlet)
		v.Cos = strings.TrimSpace(v.Cos)
	case *LocalConfig:
		v.Key = strings.TrimSpace(v.Key)
	}
}

func itemKind(item any) string {
	switch item.(type) {
	case *Domain:
		return "domain"
	case *Account:
		return "account"
	case *Alias:
		return "alias"
	case *CosAttribute:
		return "cos attribute"
	case *ConfigAttribute:
		return "config attribute"
	case *ServerAttribute:
		return "server attribute"
	case *ZimletCos:
		return "zimlet"
	case *Volume:
		return "volume"
	case *LocalConfig:
		return "localconfig"
	default:
		return fmt.Sprintf("%T", item)
	}
}
