package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64default"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64planmodifier"
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
var _ resource.Resource = &DomainResource{}
var _ resource.ResourceWithImportState = &DomainResource{}

func NewDomainResource() resource.Resource {
	return &DomainResource{}
}

// DomainResource creates mail domains with zmprov createDomain.
type DomainResource struct {
	managerResource
}

// DomainResourceModel describes the resource data model.
type DomainResourceModel struct {
	ID            types.String              `tfsdk:"id"`
	Name          types.String              `tfsdk:"name"`
	GalMaxResults types.Int64               `tfsdk:"gal_max_results"`
	GalMode       types.String              `tfsdk:"gal_mode"`
	DN            customtypes.DNStringValue `tfsdk:"dn"`
}

func (r *DomainResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_domain"
}

func (r *DomainResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Creates a Zimbra mail domain. The domain is created once with `zmprov createDomain`; " +
			"changing any argument replaces the resource, and destroying it only removes it from the Terraform state.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The domain name.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The fully qualified domain name, e.g. `example.com`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 253),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"gal_max_results": schema.Int64Attribute{
				MarkdownDescription: "Value of `zimbraGalMaxResults` for the domain. Defaults to `500`.",
				Optional:            true,
				Computed:            true,
				Default:             int64default.StaticInt64(500),
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
				PlanModifiers: []planmodifier.Int64{
					int64planmodifier.RequiresReplace(),
				},
			},
			"gal_mode": schema.StringAttribute{
				MarkdownDescription: "Value of `zimbraGalMode` for the domain: `zimbra`, `ldap` or `both`. Defaults to `zimbra`.",
				Optional:            true,
				Computed:            true,
				Default:             stringdefault.StaticString("zimbra"),
				Validators: []validator.String{
					stringvalidator.OneOf("zimbra", "ldap", "both"),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the domain entry.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *DomainResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data DomainResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	domain := zimbra.Domain{
		Name:          data.Name.ValueString(),
		GalMaxResults: int(data.GalMaxResults.ValueInt64()),
		GalMode:       data.GalMode.ValueString(),
	}

	tflog.Debug(ctx, "Creating Zimbra domain", map[string]any{
		"name": domain.Name,
	})

	result, err := r.manager.EnsureDomain(ctx, domain)
	if !appendResult(ctx, &resp.Diagnostics, "Error Creating Domain", result, err) {
		return
	}

	data.ID = types.StringValue(domain.Name)
	data.DN = customtypes.DNString(ldapclient.DomainDN(domain.Name))

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *DomainResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data DomainResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	name := data.ID.ValueString()

	tflog.Debug(ctx, "Reading Zimbra domain", map[string]any{
		"name": name,
	})

	exists, err := r.manager.LDAPExists(ctx, "", domainFilter(name))
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Domain",
			fmt.Sprintf("Could not look up domain %s: %s", name, err.Error()),
		)
		return
	}

	if !exists {
		tflog.Debug(ctx, "Zimbra domain not found, removing from state", map[string]any{
			"name": name,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	dn := ldapclient.DomainDN(name)

	if value, err := r.readSingle(ctx, dn, "zimbraGalMaxResults"); err != nil {
		resp.Diagnostics.AddError("Error Reading Domain", err.Error())
		return
	} else if value != "" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			resp.Diagnostics.AddError(
				"Error Reading Domain",
				fmt.Sprintf("Domain %s has a non-numeric zimbraGalMaxResults %q", name, value),
			)
			return
		}
		data.GalMaxResults = types.Int64Value(n)
	}

	if value, err := r.readSingle(ctx, dn, "zimbraGalMode"); err != nil {
		resp.Diagnostics.AddError("Error Reading Domain", err.Error())
		return
	} else if value != "" {
		data.GalMode = types.StringValue(value)
	}

	data.Name = types.StringValue(name)
	data.DN = customtypes.DNString(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// readSingle returns the first value of attribute on the domain entry, or
// "" when the attribute is not set.
func (r *DomainResource) readSingle(ctx context.Context, dn, attribute string) (string, error) {
	values, err := r.manager.LDAPGet(ctx, dn, attribute)
	if err != nil {
		if errors.Is(err, ldapclient.ErrAttributeNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("could not read %s of %s: %w", attribute, dn, err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

func (r *DomainResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data DomainResourceModel

	// Every argument forces replacement, so an update only refreshes state.
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *DomainResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data DomainResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing Zimbra domain from state", map[string]any{
		"name": data.ID.ValueString(),
	})

	warnStateOnlyDelete(&resp.Diagnostics, "Domain "+data.ID.ValueString())
}

func (r *DomainResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	name := strings.TrimSpace(req.ID)

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), name)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("name"), name)...)
}

func domainFilter(name string) string {
	return fmt.Sprintf("(zimbraDomainName=%s)", escapeFilter(name))
}
