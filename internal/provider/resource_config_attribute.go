package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	customtypes "github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/types"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &ConfigAttributeResource{}
var _ resource.ResourceWithImportState = &ConfigAttributeResource{}

func NewConfigAttributeResource() resource.Resource {
	return &ConfigAttributeResource{}
}

// ConfigAttributeResource manages one global configuration attribute value.
type ConfigAttributeResource struct {
	managerResource
}

// ConfigAttributeResourceModel describes the resource data model.
type ConfigAttributeResourceModel struct {
	ID        types.String              `tfsdk:"id"`
	Attribute types.String              `tfsdk:"attribute"`
	Value     types.String              `tfsdk:"value"`
	DN        customtypes.DNStringValue `tfsdk:"dn"`
}

func (r *ConfigAttributeResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_config_attribute"
}

func (r *ConfigAttributeResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Sets a global configuration attribute with `zmprov modifyConfig`. " +
			"The command only runs when the global configuration does not already carry the value.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The attribute name.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"attribute": schema.StringAttribute{
				MarkdownDescription: attributeDescription,
				Required:            true,
				Validators:          attributeValidators(),
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"value": schema.StringAttribute{
				MarkdownDescription: "The attribute value.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the global configuration entry.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *ConfigAttributeResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data ConfigAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Setting Config Attribute", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ConfigAttributeResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data ConfigAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := ldapclient.ConfigDN

	tflog.Debug(ctx, "Reading Zimbra config attribute", map[string]any{
		"dn":        dn,
		"attribute": data.Attribute.ValueString(),
	})

	current, present, err := readAttribute(ctx, r.manager, dn, data.Attribute.ValueString(), data.Value.ValueString())
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Config Attribute",
			fmt.Sprintf("Could not read %s of %s: %s", data.Attribute.ValueString(), dn, err.Error()),
		)
		return
	}

	if !present {
		resp.State.RemoveResource(ctx)
		return
	}

	data.Value = types.StringValue(current)
	data.DN = customtypes.DNString(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ConfigAttributeResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data ConfigAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Updating Config Attribute", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ConfigAttributeResource) ensure(ctx context.Context, data *ConfigAttributeResourceModel, summary string, diags *diag.Diagnostics) bool {
	attr := zimbra.ConfigAttribute{
		Attribute: data.Attribute.ValueString(),
		Value:     data.Value.ValueString(),
	}

	tflog.Debug(ctx, "Setting Zimbra config attribute", map[string]any{
		"attribute": attr.Attribute,
	})

	result, err := r.manager.EnsureConfigAttribute(ctx, attr)
	if !appendResult(ctx, diags, summary, result, err) {
		return false
	}

	data.ID = types.StringValue(attr.Attribute)
	data.DN = customtypes.DNString(ldapclient.ConfigDN)
	return true
}

func (r *ConfigAttributeResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data ConfigAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra config attribute from state", map[string]any{
		"id": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, "Global configuration attribute "+data.Attribute.ValueString())
}

func (r *ConfigAttributeResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	attribute := strings.TrimSpace(req.ID)

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), attribute)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("attribute"), attribute)...)
}
