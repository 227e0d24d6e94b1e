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

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &ZimletCosResource{}
var _ resource.ResourceWithImportState = &ZimletCosResource{}

func NewZimletCosResource() resource.Resource {
	return &ZimletCosResource{}
}

// ZimletCosResource allows or denies a zimlet in a class of service.
type ZimletCosResource struct {
	managerResource
}

// ZimletCosResourceModel describes the resource data model.
type ZimletCosResourceModel struct {
	ID      types.String `tfsdk:"id"`
	Zimlet  types.String `tfsdk:"zimlet"`
	Cos     types.String `tfsdk:"cos"`
	Enabled types.Bool   `tfsdk:"enabled"`
}

func (r *ZimletCosResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_zimlet_cos"
}

func (r *ZimletCosResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Allows or denies a zimlet in a class of service with `zmzimletctl acl`. " +
			"The zimlet is enabled when `+zimlet` is listed in `zimbraZimletAvailableZimlets`.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier in the format `cos/zimlet`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"zimlet": schema.StringAttribute{
				MarkdownDescription: "The zimlet name, e.g. `com_zimbra_url`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"cos": schema.StringAttribute{
				MarkdownDescription: "The class of service name. Defaults to `default`.",
				Optional:            true,
				Computed:            true,
				Default:             stringdefault.StaticString("default"),
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"enabled": schema.BoolAttribute{
				MarkdownDescription: "Whether the zimlet is allowed (`true`) or denied (`false`).",
				Required:            true,
			},
		},
	}
}

func (r *ZimletCosResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data ZimletCosResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Setting Zimlet ACL", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ZimletCosResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data ZimletCosResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	zimlet, cos := data.Zimlet.ValueString(), data.Cos.ValueString()

	tflog.Debug(ctx, "Reading Zimbra zimlet ACL", map[string]any{
		"zimlet": zimlet,
		"cos":    cos,
	})

	enabled, err := r.manager.ZimletCosEnabled(ctx, zimlet, cos)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Zimlet ACL",
			fmt.Sprintf("Could not read zimlets of COS %s: %s", cos, err.Error()),
		)
		return
	}

	data.Enabled = types.BoolValue(enabled)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ZimletCosResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data ZimletCosResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Updating Zimlet ACL", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ZimletCosResource) ensure(ctx context.Context, data *ZimletCosResourceModel, summary string, diags *diag.Diagnostics) bool {
	zimlet := zimbra.ZimletCos{
		Zimlet:  data.Zimlet.ValueString(),
		Cos:     data.Cos.ValueString(),
		Enabled: data.Enabled.ValueBool(),
	}

	tflog.Debug(ctx, "Setting Zimbra zimlet ACL", map[string]any{
		"zimlet":  zimlet.Zimlet,
		"cos":     zimlet.Cos,
		"enabled": zimlet.Enabled,
	})

	result, err := r.manager.EnsureZimletCos(ctx, zimlet)
	if !appendResult(ctx, diags, summary, result, err) {
		return false
	}

	data.ID = types.StringValue(zimlet.Cos + "/" + zimlet.Zimlet)
	return true
}

func (r *ZimletCosResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data ZimletCosResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra zimlet ACL from state", map[string]any{
		"id": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, fmt.Sprintf("The ACL of zimlet %s in COS %s", data.Zimlet.ValueString(), data.Cos.ValueString()))
}

func (r *ZimletCosResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	parts, err := splitImportID(req.ID, 2, "cos/zimlet")
	if err != nil {
		resp.Diagnostics.AddError("Invalid Import ID", err.Error())
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), parts[0]+"/"+parts[1])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("cos"), parts[0])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("zimlet"), parts[1])...)
}
