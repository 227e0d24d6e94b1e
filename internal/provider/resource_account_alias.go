package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &AccountAliasResource{}
var _ resource.ResourceWithImportState = &AccountAliasResource{}

func NewAccountAliasResource() resource.Resource {
	return &AccountAliasResource{}
}

// AccountAliasResource adds mail aliases to accounts.
type AccountAliasResource struct {
	managerResource
}

// AccountAliasResourceModel describes the resource data model.
type AccountAliasResourceModel struct {
	ID      types.String `tfsdk:"id"`
	Alias   types.String `tfsdk:"alias"`
	Account types.String `tfsdk:"account"`
}

func (r *AccountAliasResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_account_alias"
}

func (r *AccountAliasResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Adds a mail alias to an account with `zmprov addAccountAlias`. " +
			"Nothing is done when the alias address already exists.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier in the format `account/alias`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"alias": schema.StringAttribute{
				MarkdownDescription: "The alias address, e.g. `info@example.com`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(mailAddressPattern, "must be a mail address"),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"account": schema.StringAttribute{
				MarkdownDescription: "The address of the account receiving the alias.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(mailAddressPattern, "must be a mail address"),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
		},
	}
}

func (r *AccountAliasResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data AccountAliasResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	alias := zimbra.Alias{
		Alias:   data.Alias.ValueString(),
		Account: data.Account.ValueString(),
	}

	tflog.Debug(ctx, "Adding Zimbra account alias", map[string]any{
		"alias":   alias.Alias,
		"account": alias.Account,
	})

	result, err := r.manager.EnsureAlias(ctx, alias)
	if !appendResult(ctx, &resp.Diagnostics, "Error Adding Account Alias", result, err) {
		return
	}

	data.ID = types.StringValue(alias.Account + "/" + alias.Alias)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountAliasResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data AccountAliasResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	alias := data.Alias.ValueString()

	tflog.Debug(ctx, "Reading Zimbra account alias", map[string]any{
		"alias": alias,
	})

	exists, err := r.manager.LDAPExists(ctx, "", mailFilter(alias))
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Account Alias",
			fmt.Sprintf("Could not look up alias %s: %s", alias, err.Error()),
		)
		return
	}

	if !exists {
		tflog.Debug(ctx, "Zimbra alias not found, removing from state", map[string]any{
			"alias": alias,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountAliasResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data AccountAliasResourceModel

	// Every argument forces replacement, so an update only refreshes state.
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountAliasResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data AccountAliasResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra account alias from state", map[string]any{
		"id": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, "Alias "+data.Alias.ValueString())
}

func (r *AccountAliasResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	parts, err := splitImportID(req.ID, 2, "account/alias")
	if err != nil {
		resp.Diagnostics.AddError("Invalid Import ID", err.Error())
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), parts[0]+"/"+parts[1])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("account"), parts[0])...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("alias"), parts[1])...)
}
