package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringdefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	customtypes "github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/types"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &CosAttributeResource{}
var _ resource.ResourceWithImportState = &CosAttributeResource{}

func NewCosAttributeResource() resource.Resource {
	return &CosAttributeResource{}
}

// CosAttributeResource manages one attribute value of a class of service.
type CosAttributeResource struct {
	managerResource
}

// CosAttributeResourceModel describes the resource data model.
type CosAttributeResourceModel struct {
	ID        types.String              `tfsdk:"id"`
	Cos       types.String              `tfsdk:"cos"`
	Attribute types.String              `tfsdk:"attribute"`
	Value     types.String              `tfsdk:"value"`
	DN        customtypes.DNStringValue `tfsdk:"dn"`
}

func (r *CosAttributeResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_cos_attribute"
}

func (r *CosAttributeResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Sets an attribute of a Zimbra class of service with `zmprov modifyCos`. " +
			"The command only runs when the class of service does not already carry the value.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier in the format `cos/attribute`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"cos": schema.StringAttribute{
				MarkdownDescription: "The class of service name. Defaults to `default`.",
				Optional:            true,
				Computed:            true,
				Default:             stringdefault.StaticString("default"),
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
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
				MarkdownDescription: "The distinguished name of the class of service entry.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *CosAttributeResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data CosAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Setting COS Attribute", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *CosAttributeResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data CosAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := ldapclient.CosDN(data.Cos.ValueString())

	tflog.Debug(ctx, "Reading Zimbra COS attribute", map[string]any{
		"dn":        dn,
		"attribute": data.Attribute.ValueString(),
	})

	current, present, err := readAttribute(ctx, r.manager, dn, data.Attribute.ValueString(), data.Value.ValueString())
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading COS Attribute",
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

func (r *CosAttributeResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data CosAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Updating COS Attribute", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *CosAttributeResource) ensure(ctx context.Context, data *CosAttributeResourceModel, summary string, diags *diag.Diagnostics) bool {
	attr := zimbra.CosAttribute{
		Cos:       data.Cos.ValueString(),
		Attribute: data.Attribute.ValueString(),
		Value:     data.Value.ValueString(),
	}

	tflog.Debug(ctx, "Setting Zimbra COS attribute", map[string]any{
		"cos":       attr.Cos,
		"attribute": attr.Attribute,
	})

	result, err := r.manager.EnsureCosAttribute(ctx, attr)
	if !appendResult(ctx, diags, summary, result, err) {
		return false
	}

	data.ID = types.StringValue(attr.Cos + "/" + attr.Attribute)
	data.DN = customtypes.DNString(ldapclient.CosDN(attr.Cos))
	return true
}

func (r *CosAttributeResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data CosAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra COS attribute from state", map[string]any{
		"id": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, fmt.Sprintf("Attribute %s of COS %s", data.Attribute.ValueString(), data.Cos.ValueString()))
}

func (r *CosAttributeResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	parts, err := splitImportID(req.ID, 2, "cos/attribute")
	if err != nil {
		resp.Diagnostics.AddError("Invalid Import ID", err.Error())
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), parts[0]+"/"+parts[1])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("cos"), parts[0])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("attribute"), parts[1])...)
}
