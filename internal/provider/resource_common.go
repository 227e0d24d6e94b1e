package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

const attributeDescription = "The LDAP attribute name, e.g. `zimbraFeatureMailEnabled`. " +
	"Prefix it with `+` to add a value to a multi-valued attribute instead of replacing it."

var attributeNamePattern = regexp.MustCompile(`^\+?[A-Za-z][A-Za-z0-9-]*$`)

func attributeValidators() []validator.String {
	return []validator.String{
		stringvalidator.RegexMatches(attributeNamePattern, "must be an LDAP attribute name, optionally prefixed with +"),
	}
}

// managerResource holds the provider configured Zimbra manager. It is
// embedded by every resource of the provider.
type managerResource struct {
	manager *zimbra.Manager
}

func (r *managerResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	manager, ok := req.ProviderData.(*zimbra.Manager)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Resource Configure Type",
			fmt.Sprintf("Expected *zimbra.Manager, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	r.manager = manager
}

// appendResult logs the outcome of an Ensure call and reports failures as
// diagnostics. It returns false when the change failed.
func appendResult(ctx context.Context, diags *diag.Diagnostics, summary string, result *zimbra.Result, err error) bool {
	if result == nil {
		result = &zimbra.Result{Status: zimbra.StatusFailed}
	}

	fields := map[string]any{
		"name":   result.Name,
		"status": string(result.Status),
	}
	if result.Command != "" {
		fields["command"] = result.Command
	}

	if err != nil || !result.Succeeded() {
		detail := result.Comment
		if detail == "" && err != nil {
			detail = err.Error()
		}
		tflog.Error(ctx, summary, fields)
		diags.AddError(summary, detail)
		return false
	}

	tflog.Debug(ctx, result.Comment, fields)
	return true
}

// warnStateOnlyDelete tells the user that destroying the resource left the
// server untouched. Zimbra configuration is only ever added.
func warnStateOnlyDelete(diags *diag.Diagnostics, what string) {
	diags.AddWarning(
		"Resource Removed From State Only",
		fmt.Sprintf("%s was removed from the Terraform state but not from the Zimbra server. "+
			"Remove it with the Zimbra administration tools if it is no longer wanted.", what),
	)
}

// splitImportID splits "a/b" import identifiers.
func splitImportID(id string, parts int, format string) ([]string, error) {
	fields := strings.SplitN(strings.TrimSpace(id), "/", parts)
	if len(fields) != parts {
		return nil, fmt.Errorf("expected import identifier in the format %q, got: %q", format, id)
	}
	for _, field := range fields {
		if field == "" {
			return nil, fmt.Errorf("expected import identifier in the format %q, got: %q", format, id)
		}
	}
	return fields, nil
}

// readAttribute returns the value to record in state for a managed
// attribute. When (attribute=value) exists the configured value is kept.
// Otherwise a single current value is returned so the difference shows up
// as an update; present is false when the attribute is absent, multi-valued
// or managed with a "+" prefix.
func readAttribute(ctx context.Context, manager *zimbra.Manager, base, attribute, value string) (current string, present bool, err error) {
	name := strings.TrimPrefix(attribute, "+")

	if value != "" {
		filter := fmt.Sprintf("(%s=%s)", name, escapeFilter(value))
		exists, err := manager.LDAPExists(ctx, base, filter)
		if err != nil {
			return "", false, err
		}
		if exists {
			return value, true, nil
		}
	}

	if strings.HasPrefix(attribute, "+") {
		return "", false, nil
	}

	values, err := manager.LDAPGet(ctx, base, name)
	if err != nil {
		if errors.Is(err, ldapclient.ErrAttributeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(values) != 1 {
		return "", false, nil
	}

	return values[0], true, nil
}

func escapeFilter(value string) string {
	return goldap.EscapeFilter(value)
}
