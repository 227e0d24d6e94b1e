package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
)

var _ function.Function = &EntryDNFunction{}

// entryKinds maps a function kind to the DN builder and a description of
// the entry it names.
var entryKinds = map[string]struct {
	dn      func(string) string
	entry   string
	example string
}{
	"cos":    {ldapclient.CosDN, "class of service", "cn=default,cn=cos,cn=zimbra"},
	"server": {ldapclient.ServerDN, "mailbox server", "cn=mail.example.com,cn=servers,cn=zimbra"},
	"domain": {ldapclient.DomainDN, "mail domain", "dc=example,dc=com"},
}

// EntryDNFunction implements the cos_dn, server_dn and domain_dn functions.
type EntryDNFunction struct {
	kind string
}

// Metadata returns the function name.
func (f EntryDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = f.kind + "_dn"
}

// Definition returns the function signature.
func (f EntryDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	kind := entryKinds[f.kind]

	resp.Definition = function.Definition{
		Summary:     "Distinguished name of a Zimbra " + kind.entry,
		Description: "Returns the LDAP distinguished name of the named " + kind.entry + ", escaping special characters in the name.",
		MarkdownDescription: "Returns the LDAP distinguished name of the named " + kind.entry +
			", escaping special characters in the name. For example `" + kind.example + "`.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "name",
				Description: "The name of the " + kind.entry + ".",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f EntryDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var name string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &name))
	if resp.Error != nil {
		return
	}

	kind, ok := entryKinds[f.kind]
	if !ok {
		resp.Error = function.NewFuncError("unsupported entry kind " + f.kind)
		return
	}

	name = strings.TrimSpace(name)
	if name == "" {
		resp.Error = function.NewArgumentFuncError(0, "name cannot be empty")
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, kind.dn(name)))
}
