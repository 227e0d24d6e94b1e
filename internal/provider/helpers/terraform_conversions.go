// Package helpers provides conversions between LDAP results and Terraform
// values shared by the data sources of the provider.
package helpers

import (
	"context"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// AttributeValuesType is the Terraform type of an entry's attributes:
// a map from attribute name to its values.
var AttributeValuesType = types.MapType{ElemType: types.ListType{ElemType: types.StringType}}

// StringList converts values to a list of strings. A nil slice becomes an
// empty list, not null.
func StringList(ctx context.Context, values []string) (types.List, diag.Diagnostics) {
	if values == nil {
		values = []string{}
	}
	return types.ListValueFrom(ctx, types.StringType, values)
}

// ListToStrings returns the elements of a list of strings. Null and
// unknown lists yield nil.
func ListToStrings(ctx context.Context, list types.List) ([]string, diag.Diagnostics) {
	if list.IsNull() || list.IsUnknown() {
		return nil, nil
	}

	var values []string
	diags := list.ElementsAs(ctx, &values, false)
	return values, diags
}

// EntryAttributes converts the attributes of an LDAP entry to a map of
// string lists keyed by attribute name. Attributes returned more than
// once are merged.
func EntryAttributes(ctx context.Context, attributes []*ldap.EntryAttribute) (types.Map, diag.Diagnostics) {
	var diags diag.Diagnostics

	merged := make(map[string][]string, len(attributes))
	for _, attribute := range attributes {
		merged[attribute.Name] = append(merged[attribute.Name], attribute.Values...)
	}

	elements := make(map[string]attr.Value, len(merged))
	for name, values := range merged {
		list, d := StringList(ctx, values)
		diags.Append(d...)
		elements[name] = list
	}

	result, d := types.MapValue(AttributeValuesType.ElemType, elements)
	diags.Append(d...)
	return result, diags
}
