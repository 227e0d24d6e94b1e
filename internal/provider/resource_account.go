package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/boolplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &AccountResource{}
var _ resource.ResourceWithImportState = &AccountResource{}

// mailAddressPattern is a loose check; zimbra.Prepare validates fully.
var mailAddressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func NewAccountResource() resource.Resource {
	return &AccountResource{}
}

// AccountResource creates mailbox accounts with zmprov createAccount.
type AccountResource struct {
	managerResource
}

// AccountResourceModel describes the resource data model.
type AccountResourceModel struct {
	ID          types.String `tfsdk:"id"`
	Name        types.String `tfsdk:"name"`
	Password    types.String `tfsdk:"password"`
	GivenName   types.String `tfsdk:"given_name"`
	Sn          types.String `tfsdk:"sn"`
	DisplayName types.String `tfsdk:"display_name"`
	Description types.String `tfsdk:"description"`
	HideInGal   types.Bool   `tfsdk:"hide_in_gal"`
}

func (r *AccountResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_account"
}

func (r *AccountResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	replace := []planmodifier.String{stringplanmodifier.RequiresReplace()}

	resp.Schema = schema.Schema{
		MarkdownDescription: "Creates a Zimbra mailbox account. The account is created once with `zmprov createAccount` " +
			"and is not modified afterwards; destroying the resource only removes it from the Terraform state.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The account address.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The account address, e.g. `admin@example.com`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(mailAddressPattern, "must be a mail address"),
				},
				PlanModifiers: replace,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "The initial password. It is never read back from the server.",
				Required:            true,
				Sensitive:           true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: replace,
			},
			"given_name": schema.StringAttribute{
				MarkdownDescription: "The `givenName` of the account.",
				Optional:            true,
				PlanModifiers:       replace,
			},
			"sn": schema.StringAttribute{
				MarkdownDescription: "The `sn` (surname) of the account.",
				Optional:            true,
				PlanModifiers:       replace,
			},
			"display_name": schema.StringAttribute{
				MarkdownDescription: "The `displayName` of the account.",
				Optional:            true,
				PlanModifiers:       replace,
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "The `description` of the account.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtMost(1024),
				},
				PlanModifiers: replace,
			},
			"hide_in_gal": schema.BoolAttribute{
				MarkdownDescription: "Value of `zimbraHideInGal`. Defaults to `true`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(true),
				PlanModifiers: []planmodifier.Bool{
					boolplanmodifier.RequiresReplace(),
				},
			},
		},
	}
}

func (r *AccountResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data AccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	hideInGal := data.HideInGal.ValueBool()
	account := zimbra.Account{
		Name:        data.Name.ValueString(),
		Password:    data.Password.ValueString(),
		GivenName:   data.GivenName.ValueString(),
		Sn:          data.Sn.ValueString(),
		DisplayName: data.DisplayName.ValueString(),
		Description: data.Description.ValueString(),
		HideInGal:   &hideInGal,
	}

	tflog.Debug(ctx, "Creating Zimbra account", map[string]any{
		"name": account.Name,
	})

	result, err := r.manager.EnsureAccount(ctx, account)
	if !appendResult(ctx, &resp.Diagnostics, "Error Creating Account", result, err) {
		return
	}

	if result.Status == zimbra.StatusUnchanged {
		resp.Diagnostics.AddWarning(
			"Account Already Exists",
			fmt.Sprintf("Account %s already existed and was adopted without changes. "+
				"The configured password and attributes were not applied.", account.Name),
		)
	}

	data.ID = types.StringValue(account.Name)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data AccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	name := data.ID.ValueString()

	tflog.Debug(ctx, "Reading Zimbra account", map[string]any{
		"name": name,
	})

	exists, err := r.manager.LDAPExists(ctx, "", mailFilter(name))
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Account",
			fmt.Sprintf("Could not look up account %s: %s", name, err.Error()),
		)
		return
	}

	if !exists {
		tflog.Debug(ctx, "Zimbra account not found, removing from state", map[string]any{
			"name": name,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	data.Name = types.StringValue(name)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data AccountResourceModel

	// Every argument forces replacement, so an update only refreshes state.
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data AccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra account from state", map[string]any{
		"name": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, "Account "+data.ID.ValueString())
}

func (r *AccountResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	name := strings.TrimSpace(req.ID)

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), name)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("name"), name)...)
}

func mailFilter(address string) string {
	return fmt.Sprintf("(mail=%s)", escapeFilter(address))
}
