// Package state loads the desired-state file reconciled by zmstate.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// DesiredState is the content of a zmstate file. Each kind is a TOML array
// of tables, for example:
//
//	[[domain]]
//	name = "example.com"
//
//	[[account]]
//	name = "admin@example.com"
//	password = "changeme"
type DesiredState struct {
	LocalConfig      []zimbra.LocalConfig     `toml:"localconfig"`
	ConfigAttributes []zimbra.ConfigAttribute `toml:"config_attribute"`
	ServerAttributes []zimbra.ServerAttribute `toml:"server_attribute"`
	CosAttributes    []zimbra.CosAttribute    `toml:"cos_attribute"`
	Zimlets          []zimbra.ZimletCos       `toml:"zimlet_cos"`
	Domains          []zimbra.Domain          `toml:"domain"`
	Accounts         []zimbra.Account         `toml:"account"`
	Aliases          []zimbra.Alias           `toml:"alias"`
	Volumes          []zimbra.Volume          `toml:"volume"`

	// Undecoded lists keys present in the file that match no field.
	Undecoded []string `toml:"-"`
}

// Load reads and validates the desired state at path.
func Load(path string) (*DesiredState, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read desired state: %w", err)
	}

	state, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return state, nil
}

// Parse decodes and validates a desired state document.
func Parse(content string) (*DesiredState, error) {
	var state DesiredState

	metadata, err := toml.Decode(content, &state)
	if err != nil {
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("invalid TOML at line %d: %s", parseErr.Position.Line, parseErr.Message)
		}
		return nil, fmt.Errorf("invalid desired state: %w", err)
	}

	for _, key := range metadata.Undecoded() {
		state.Undecoded = append(state.Undecoded, key.String())
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// Validate applies defaults to every item and validates it. All invalid
// items are reported together.
func (s *DesiredState) Validate() error {
	var errs []error

	check := func(kind string, i int, item any) {
		if err := zimbra.Prepare(item); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", kind, i, err))
		}
	}

	for i := range s.LocalConfig {
		check("localconfig", i, &s.LocalConfig[i])
	}
	for i := range s.ConfigAttributes {
		check("config_attribute", i, &s.ConfigAttributes[i])
	}
	for i := range s.ServerAttributes {
		check("server_attribute", i, &s.ServerAttributes[i])
	}
	for i := range s.CosAttributes {
		check("cos_attribute", i, &s.CosAttributes[i])
	}
	for i := range s.Zimlets {
		check("zimlet_cos", i, &s.Zimlets[i])
	}
	for i := range s.Domains {
		check("domain", i, &s.Domains[i])
	}
	for i := range s.Accounts {
		check("account", i, &s.Accounts[i])
	}
	for i := range s.Aliases {
		check("alias", i, &s.Aliases[i])
	}
	for i := range s.Volumes {
		check("volume", i, &s.Volumes[i])
	}

	return errors.Join(errs...)
}

// Len returns the number of items in the desired state.
func (s *DesiredState) Len() int {
	return len(s.LocalConfig) + len(s.ConfigAttributes) + len(s.ServerAttributes) +
		len(s.CosAttributes) + len(s.Zimlets) + len(s.Domains) + len(s.Accounts) +
		len(s.Aliases) + len(s.Volumes)
}

// Reconciler reconciles single items. *zimbra.Manager satisfies it.
type Reconciler interface {
	EnsureLocalConfig(ctx context.Context, lc zimbra.LocalConfig) (*zimbra.Result, error)
	EnsureConfigAttribute(ctx context.Context, attr zimbra.ConfigAttribute) (*zimbra.Result, error)
	EnsureServerAttribute(ctx context.Context, attr zimbra.ServerAttribute) (*zimbra.Result, error)
	EnsureCosAttribute(ctx context.Context, attr zimbra.CosAttribute) (*zimbra.Result, error)
	EnsureZimletCos(ctx context.Context, zimlet zimbra.ZimletCos) (*zimbra.Result, error)
	EnsureDomain(ctx context.Context, domain zimbra.Domain) (*zimbra.Result, error)
	EnsureAccount(ctx context.Context, account zimbra.Account) (*zimbra.Result, error)
	EnsureAlias(ctx context.Context, alias zimbra.Alias) (*zimbra.Result, error)
	EnsureVolumeCompressed(ctx context.Context, volume zimbra.Volume) (*zimbra.Result, error)
}

// Item is one reconciled item.
type Item struct {
	Kind   string
	Result *zimbra.Result
	Err    error
}

// Apply reconciles every item of s in kind order: localconfig, config,
// server, cos, zimlet_cos, domain, account, alias, volume. Items of one
// kind keep file order. A failed item does not stop the run; report is
// called after each item when not nil. Apply stops early only when ctx is
// done.
func Apply(ctx context.Context, r Reconciler, s *DesiredState, report func(Item)) ([]Item, error) {
	items := make([]Item, 0, s.Len())

	run := func(kind string, fn func() (*zimbra.Result, error)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := fn()
		item := Item{Kind: kind, Result: result, Err: err}
		items = append(items, item)
		if report != nil {
			report(item)
		}
		return nil
	}

	steps := []func() error{
		func() error {
			for _, lc := range s.LocalConfig {
				if err := run("localconfig", func() (*zimbra.Result, error) { return r.EnsureLocalConfig(ctx, lc) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, attr := range s.ConfigAttributes {
				if err := run("config_attribute", func() (*zimbra.Result, error) { return r.EnsureConfigAttribute(ctx, attr) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, attr := range s.ServerAttributes {
				if err := run("server_attribute", func() (*zimbra.Result, error) { return r.EnsureServerAttribute(ctx, attr) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, attr := range s.CosAttributes {
				if err := run("cos_attribute", func() (*zimbra.Result, error) { return r.EnsureCosAttribute(ctx, attr) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, zimlet := range s.Zimlets {
				if err := run("zimlet_cos", func() (*zimbra.Result, error) { return r.EnsureZimletCos(ctx, zimlet) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, domain := range s.Domains {
				if err := run("domain", func() (*zimbra.Result, error) { return r.EnsureDomain(ctx, domain) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, account := range s.Accounts {
				if err := run("account", func() (*zimbra.Result, error) { return r.EnsureAccount(ctx, account) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, alias := range s.Aliases {
				if err := run("alias", func() (*zimbra.Result, error) { return r.EnsureAlias(ctx, alias) }); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, volume := range s.Volumes {
				if err := run("volume", func() (*zimbra.Result, error) { return r.EnsureVolumeCompressed(ctx, volume) }); err != nil {
					return err
				}
			}
			return nil
		},
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return items, err
		}
	}
	return items, nil
}

// Summary counts items by status.
type Summary map[zimbra.Status]int

// Summarize counts the statuses of items. An item without a result counts
// as failed.
func Summarize(items []Item) Summary {
	summary := make(Summary)
	for _, item := range items {
		status := zimbra.StatusFailed
		if item.Result != nil {
			status = item.Result.Status
		}
		summary[status]++
	}
	return summary
}

// Failed reports whether any item failed.
func (s Summary) Failed() bool {
	return s[zimbra.StatusFailed] > 0
}
