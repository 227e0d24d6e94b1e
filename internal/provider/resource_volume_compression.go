package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64default"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &VolumeCompressionResource{}
var _ resource.ResourceWithImportState = &VolumeCompressionResource{}

func NewVolumeCompressionResource() resource.Resource {
	return &VolumeCompressionResource{}
}

// VolumeCompressionResource enables blob compression on a store volume.
type VolumeCompressionResource struct {
	managerResource
}

// VolumeCompressionResourceModel describes the resource data model.
type VolumeCompressionResourceModel struct {
	ID       types.String `tfsdk:"id"`
	VolumeID types.Int64  `tfsdk:"volume_id"`
}

func (r *VolumeCompressionResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_volume_compression"
}

func (r *VolumeCompressionResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Enables compression on a Zimbra store volume with `zmvolume --edit --compress true`. " +
			"Destroying the resource leaves compression enabled.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The volume ID as a string.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"volume_id": schema.Int64Attribute{
				MarkdownDescription: "The store volume ID, as listed by `zmvolume -l`. Defaults to `1`.",
				Optional:            true,
				Computed:            true,
				Default:             int64default.StaticInt64(1),
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
				PlanModifiers: []planmodifier.Int64{
					int64planmodifier.RequiresReplace(),
				},
			},
		},
	}
}

func (r *VolumeCompressionResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data VolumeCompressionResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	volume := zimbra.Volume{ID: int(data.VolumeID.ValueInt64())}

	tflog.Debug(ctx, "Enabling Zimbra volume compression", map[string]any{
		"volume_id": volume.ID,
	})

	result, err := r.manager.EnsureVolumeCompressed(ctx, volume)
	if !appendResult(ctx, &resp.Diagnostics, "Error Enabling Volume Compression", result, err) {
		return
	}

	data.ID = types.StringValue(strconv.Itoa(volume.ID))

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *VolumeCompressionResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data VolumeCompressionResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	id := int(data.VolumeID.ValueInt64())

	tflog.Debug(ctx, "Reading Zimbra volume compression", map[string]any{
		"volume_id": id,
	})

	compressed, err := r.manager.VolumeCompressed(ctx, id)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Volume",
			fmt.Sprintf("Could not read status of volume %d: %s", id, err.Error()),
		)
		return
	}

	if !compressed {
		tflog.Debug(ctx, "Zimbra volume is not compressed, removing from state", map[string]any{
			"volume_id": id,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *VolumeCompressionResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data VolumeCompressionResourceModel

	// volume_id forces replacement, so an update only refreshes state.
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *VolumeCompressionResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data VolumeCompressionResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra volume compression from state", map[string]any{
		"volume_id": data.VolumeID.ValueInt64(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, fmt.Sprintf("Compression of volume %d", data.VolumeID.ValueInt64()))
}

func (r *VolumeCompressionResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	id, err := strconv.ParseInt(strings.TrimSpace(req.ID), 10, 64)
	if err != nil || id < 1 {
		resp.Diagnostics.AddError(
			"Invalid Import ID",
			fmt.Sprintf("Expected a positive volume ID, got: %q", req.ID),
		)
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), strconv.FormatInt(id, 10))...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("volume_id"), id)...)
}
