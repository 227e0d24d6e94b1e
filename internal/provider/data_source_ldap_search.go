package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/helpers"
	customtypes "github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/types"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &LDAPSearchDataSource{}

var searchScopes = map[string]ldapclient.SearchScope{
	"base": ldapclient.ScopeBaseObject,
	"one":  ldapclient.ScopeSingleLevel,
	"sub":  ldapclient.ScopeWholeSubtree,
}

func NewLDAPSearchDataSource() datasource.DataSource {
	return &LDAPSearchDataSource{}
}

// LDAPSearchDataSource runs a paged search against the Zimbra directory.
type LDAPSearchDataSource struct {
	managerDataSource
}

// LDAPSearchDataSourceModel describes the data source data model.
type LDAPSearchDataSourceModel struct {
	ID         types.String              `tfsdk:"id"`
	BaseDN     customtypes.DNStringValue `tfsdk:"base_dn"`
	Filter     types.String              `tfsdk:"filter"`
	Scope      types.String              `tfsdk:"scope"`
	Attributes types.List                `tfsdk:"attributes"`
	Entries    []LDAPEntryModel          `tfsdk:"entries"`
	Total      types.Int64               `tfsdk:"total"`
	Pages      types.Int64               `tfsdk:"pages"`
}

// LDAPEntryModel is one entry of a search result.
type LDAPEntryModel struct {
	DN         customtypes.DNStringValue `tfsdk:"dn"`
	Attributes types.Map                 `tfsdk:"attributes"`
}

func (d *LDAPSearchDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_ldap_search"
}

func (d *LDAPSearchDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Searches the Zimbra directory with the simple paged results control (RFC 2696), " +
			"so results are not truncated by the server size limit. The page size and control encoding " +
			"are set on the provider.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier built from the base DN, scope and filter.",
				Computed:            true,
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The search base, e.g. `cn=cos,cn=zimbra`. An empty string searches from the root.",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidBaseDN(),
				},
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "The LDAP filter. Defaults to `" + ldapclient.DefaultFilter + "`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(3),
				},
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "The search scope: `base`, `one` or `sub`. Defaults to `sub`.",
				Optional:            true,
				Validators: []validator.String{
					validators.CaseInsensitiveOneOf("base", "one", "sub"),
				},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "The attributes to return. All user attributes are returned when unset.",
				Optional:            true,
				ElementType:         types.StringType,
				Validators: []validator.List{
					listvalidator.ValueStringsAre(stringvalidator.LengthAtLeast(1)),
				},
			},
			"entries": schema.ListNestedAttribute{
				MarkdownDescription: "The matching entries, in the order the server returned them.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"dn": schema.StringAttribute{
							MarkdownDescription: "The distinguished name of the entry.",
							Computed:            true,
							CustomType:          customtypes.DNStringType{},
						},
						"attributes": schema.MapAttribute{
							MarkdownDescription: "The returned attributes, keyed by name.",
							Computed:            true,
							ElementType:         types.ListType{ElemType: types.StringType},
						},
					},
				},
			},
			"total": schema.Int64Attribute{
				MarkdownDescription: "The number of entries returned.",
				Computed:            true,
			},
			"pages": schema.Int64Attribute{
				MarkdownDescription: "The number of pages the server returned.",
				Computed:            true,
			},
		},
	}
}

func (d *LDAPSearchDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data LDAPSearchDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	searchReq, diags := buildSearchRequest(ctx, &data)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "zimbra_ldap_search", "read", map[string]any{
		"base_dn": searchReq.BaseDN,
		"filter":  searchReq.Filter,
		"scope":   searchReq.Scope.String(),
	})
	defer func() { logCompletion(firstError(resp)) }()

	result, err := d.manager.Search(ctx, searchReq)
	if err != nil {
		summary := "Error Searching LDAP"
		if ldapclient.IsPagingError(err) {
			summary = "Error Paging LDAP Search"
		}
		resp.Diagnostics.AddError(
			summary,
			fmt.Sprintf("Could not search %q with filter %s: %s", searchReq.BaseDN, searchReq.Filter, err.Error()),
		)
		return
	}

	tflog.Debug(ctx, "LDAP search completed", map[string]any{
		"entries": result.Total,
		"pages":   result.Pages,
	})

	data.Entries = make([]LDAPEntryModel, 0, len(result.Entries))
	for _, entry := range result.Entries {
		attributes, diags := helpers.EntryAttributes(ctx, entry.Attributes)
		resp.Diagnostics.Append(diags...)
		if resp.Diagnostics.HasError() {
			return
		}

		data.Entries = append(data.Entries, LDAPEntryModel{
			DN:         customtypes.DNString(entry.DN),
			Attributes: attributes,
		})
	}

	data.ID = types.StringValue(fmt.Sprintf("%s/%s/%s", searchReq.BaseDN, searchReq.Scope, searchReq.Filter))
	data.Total = types.Int64Value(int64(result.Total))
	data.Pages = types.Int64Value(int64(result.Pages))

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// buildSearchRequest converts the configuration to a search request,
// applying the default filter and scope.
func buildSearchRequest(ctx context.Context, data *LDAPSearchDataSourceModel) (*ldapclient.SearchRequest, diag.Diagnostics) {
	var diags diag.Diagnostics

	req := &ldapclient.SearchRequest{
		BaseDN: data.BaseDN.ValueString(),
		Filter: ldapclient.DefaultFilter,
		Scope:  ldapclient.ScopeWholeSubtree,
	}

	if filter := strings.TrimSpace(data.Filter.ValueString()); filter != "" {
		req.Filter = filter
	}

	if !data.Scope.IsNull() && !data.Scope.IsUnknown() {
		scope, ok := validators.Canonical(data.Scope.ValueString(), "base", "one", "sub")
		if !ok {
			diags.AddAttributeError(path.Root("scope"), "Invalid Scope",
				fmt.Sprintf("Unsupported search scope %q", data.Scope.ValueString()))
			return nil, diags
		}
		req.Scope = searchScopes[scope]
	}

	attributes, d := helpers.ListToStrings(ctx, data.Attributes)
	diags.Append(d...)
	req.Attributes = attributes

	return req, diags
}
