package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/localconfig"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &LocalConfigResource{}
var _ resource.ResourceWithImportState = &LocalConfigResource{}

var localConfigKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func NewLocalConfigResource() resource.Resource {
	return &LocalConfigResource{}
}

// LocalConfigResource sets a key of the server's localconfig.xml.
type LocalConfigResource struct {
	managerResource
}

// LocalConfigResourceModel describes the resource data model.
type LocalConfigResourceModel struct {
	ID        types.String `tfsdk:"id"`
	Key       types.String `tfsdk:"key"`
	Value     types.String `tfsdk:"value"`
	Sensitive types.Bool   `tfsdk:"sensitive"`
}

func (r *LocalConfigResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_localconfig"
}

func (r *LocalConfigResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Sets a localconfig key with `zmlocalconfig -e`. The current value is read from " +
			"`localconfig.xml` on the host running Terraform.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The localconfig key.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"key": schema.StringAttribute{
				MarkdownDescription: "The localconfig key, e.g. `ldap_cache_account_maxsize`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(localConfigKeyPattern, "must contain only letters, digits, underscores, dots and hyphens"),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"value": schema.StringAttribute{
				MarkdownDescription: "The value to set. Stored as sensitive in the Terraform state.",
				Required:            true,
				Sensitive:           true,
			},
			"sensitive": schema.BoolAttribute{
				MarkdownDescription: "Redact the value from logs and diagnostics. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
		},
	}
}

func (r *LocalConfigResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data LocalConfigResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Setting Localconfig", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *LocalConfigResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data LocalConfigResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	key := data.Key.ValueString()

	tflog.Debug(ctx, "Reading Zimbra localconfig", map[string]any{
		"key": key,
	})

	value, err := r.manager.LocalConfigValue(key)
	if err != nil {
		if errors.Is(err, localconfig.ErrKeyNotFound) {
			resp.State.RemoveResource(ctx)
			return
		}
		resp.Diagnostics.AddError(
			"Error Reading Localconfig",
			fmt.Sprintf("Could not read localconfig key %s: %s", key, err.Error()),
		)
		return
	}

	data.Value = types.StringValue(value)
	if data.Sensitive.IsNull() {
		data.Sensitive = types.BoolValue(false)
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *LocalConfigResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data LocalConfigResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !r.ensure(ctx, &data, "Error Updating Localconfig", &resp.Diagnostics) {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *LocalConfigResource) ensure(ctx context.Context, data *LocalConfigResourceModel, summary string, diags *diag.Diagnostics) bool {
	lc := zimbra.LocalConfig{
		Key:       data.Key.ValueString(),
		Value:     data.Value.ValueString(),
		Sensitive: data.Sensitive.ValueBool(),
	}

	tflog.Debug(ctx, "Setting Zimbra localconfig", map[string]any{
		"key": lc.Key,
	})

	result, err := r.manager.EnsureLocalConfig(ctx, lc)
	if !appendResult(ctx, diags, summary, result, err) {
		return false
	}

	data.ID = types.StringValue(lc.Key)
	return true
}

func (r *LocalConfigResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data LocalConfigResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra localconfig from state", map[string]any{
		"key": data.Key.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, "Localconfig key "+data.Key.ValueString())
}

func (r *LocalConfigResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	key := strings.TrimSpace(req.ID)
	if !localConfigKeyPattern.MatchString(key) {
		resp.Diagnostics.AddError(
			"Invalid Import ID",
			fmt.Sprintf("Expected a localconfig key, got: %q", req.ID),
		)
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), key)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("key"), key)...)
}
