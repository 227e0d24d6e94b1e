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
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	customtypes "github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/types"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &ServerAttributeResource{}
var _ resource.ResourceWithImportState = &ServerAttributeResource{}

func NewServerAttributeResource() resource.Resource {
	return &ServerAttributeResource{}
}

// ServerAttributeResource manages one attribute value of a mailbox server.
type ServerAttributeResource struct {
	managerResource
}

// ServerAttributeResourceModel describes the resource data model.
type ServerAttributeResourceModel struct {
	ID        types.String              `tfsdk:"id"`
	Server    types.String              `tfsdk:"server"`
	Attribute types.String              `tfsdk:"attribute"`
	Value     types.String              `tfsdk:"value"`
	DN        customtypes.DNStringValue `tfsdk:"dn"`
}

func (r *ServerAttributeResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_server_attribute"
}

func (r *ServerAttributeResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Sets an attribute of a Zimbra mailbox server with `zmprov modifyServer`. " +
			"The command only runs when the server does not already carry the value.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier in the format `server/attribute`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"server": schema.StringAttribute{
				MarkdownDescription: "The mailbox server name, as listed by `zmprov getAllServers`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 253),
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
				MarkdownDescription: "The distinguished name of the server entry.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *ServerAttributeResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data ServerAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Setting Server Attribute", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ServerAttributeResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data ServerAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := ldapclient.ServerDN(data.Server.ValueString())

	tflog.Debug(ctx, "Reading Zimbra server attribute", map[string]any{
		"dn":        dn,
		"attribute": data.Attribute.ValueString(),
	})

	current, present, err := readAttribute(ctx, r.manager, dn, data.Attribute.ValueString(), data.Value.ValueString())
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Server Attribute",
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

func (r *ServerAttributeResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data ServerAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Updating Server Attribute", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ServerAttributeResource) ensure(ctx context.Context, data *ServerAttributeResourceModel, summary string, diags *diag.Diagnostics) bool {
	attr := zimbra.ServerAttribute{
		Server:    data.Server.ValueString(),
		Attribute: data.Attribute.ValueString(),
		Value:     data.Value.ValueString(),
	}

	tflog.Debug(ctx, "Setting Zimbra server attribute", map[string]any{
		"server":    attr.Server,
		"attribute": attr.Attribute,
	})

	result, err := r.manager.EnsureServerAttribute(ctx, attr)
	if !appendResult(ctx, diags, summary, result, err) {
		return false
	}

	data.ID = types.StringValue(attr.Server + "/" + attr.Attribute)
	data.DN = customtypes.DNString(ldapclient.ServerDN(attr.Server))
	return true
}

func (r *ServerAttributeResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data ServerAttributeResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra server attribute from state", map[string]any{
		"id": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, fmt.Sprintf("Attribute %s of server %s", data.Attribute.ValueString(), data.Server.ValueString()))
}

func (r *ServerAttributeResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	parts, err := splitImportID(req.ID, 2, "server/attribute")
	if err != nil {
		resp.Diagnostics.AddError("Invalid Import ID", err.Error())
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), parts[0]+"/"+parts[1])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("server"), parts[0])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("attribute"), parts[1])...)
}
