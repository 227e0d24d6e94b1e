package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/helpers"
	customtypes "github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/types"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/validators"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &LDAPAttributeDataSource{}

func NewLDAPAttributeDataSource() datasource.DataSource {
	return &LDAPAttributeDataSource{}
}

// managerDataSource holds the provider configured Zimbra manager.
type managerDataSource struct {
	manager *zimbra.Manager
}

func (d *managerDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	manager, ok := req.ProviderData.(*zimbra.Manager)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *zimbra.Manager, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.manager = manager
}

// firstError returns the first error diagnostic of resp as an error.
func firstError(resp *datasource.ReadResponse) error {
	for _, d := range resp.Diagnostics.Errors() {
		return fmt.Errorf("%s: %s", d.Summary(), d.Detail())
	}
	return nil
}

// LDAPAttributeDataSource reads the values of one attribute from the
// Zimbra directory.
type LDAPAttributeDataSource struct {
	managerDataSource
}

// LDAPAttributeDataSourceModel describes the data source data model.
type LDAPAttributeDataSourceModel struct {
	ID        types.String              `tfsdk:"id"`
	BaseDN    customtypes.DNStringValue `tfsdk:"base_dn"`
	Attribute types.String              `tfsdk:"attribute"`
	Values    types.List                `tfsdk:"values"`
	Found     types.Bool                `tfsdk:"found"`
}

func (d *LDAPAttributeDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_ldap_attribute"
}

func (d *LDAPAttributeDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads the values of an attribute from the first entry under `base_dn` that carries it. " +
			"The lookup uses a paged subtree search.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier in the format `base_dn/attribute`.",
				Computed:            true,
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The search base, e.g. `cn=config,cn=zimbra`. An empty string searches from the root.",
				Required:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidBaseDN(),
				},
			},
			"attribute": schema.StringAttribute{
				MarkdownDescription: "The attribute to read, e.g. `zimbraMtaMyNetworks`.",
				Required:            true,
				Validators:          attributeValidators(),
			},
			"values": schema.ListAttribute{
				MarkdownDescription: "The attribute values. Empty when no entry carries the attribute.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"found": schema.BoolAttribute{
				MarkdownDescription: "Whether an entry carrying the attribute was found.",
				Computed:            true,
			},
		},
	}
}

func (d *LDAPAttributeDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data LDAPAttributeDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	baseDN, attribute := data.BaseDN.ValueString(), data.Attribute.ValueString()

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "zimbra_ldap_attribute", "read", map[string]any{
		"base_dn":   baseDN,
		"attribute": attribute,
	})
	defer func() { logCompletion(firstError(resp)) }()

	values, err := d.manager.LDAPGet(ctx, baseDN, attribute)
	found := true
	if err != nil {
		if !errors.Is(err, ldapclient.ErrAttributeNotFound) {
			resp.Diagnostics.AddError(
				"Error Reading LDAP Attribute",
				fmt.Sprintf("Could not read %s under %q: %s", attribute, baseDN, err.Error()),
			)
			return
		}
		found = false
	}

	tflog.Debug(ctx, "Read LDAP attribute", map[string]any{
		"attribute": attribute,
		"values":    len(values),
	})

	list, diags := helpers.StringList(ctx, values)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(baseDN + "/" + attribute)
	data.Values = list
	data.Found = types.BoolValue(found)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
