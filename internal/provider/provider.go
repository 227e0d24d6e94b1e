package provider

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/localconfig"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/validators"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zmcmd"
)

// Ensure ZimbraProvider satisfies various provider interfaces.
var _ provider.Provider = &ZimbraProvider{}
var _ provider.ProviderWithFunctions = &ZimbraProvider{}
var _ provider.ProviderWithConfigValidators = &ZimbraProvider{}

// ZimbraProvider defines the provider implementation.
type ZimbraProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string
}

// ZimbraProviderModel describes the provider data model.
type ZimbraProviderModel struct {
	// Connection settings
	LdapURL        types.String `tfsdk:"ldap_url"`
	BindDN         types.String `tfsdk:"bind_dn"`
	Password       types.String `tfsdk:"password"`
	LocalConfig    types.String `tfsdk:"localconfig_path"`
	ConnectTimeout types.Int64  `tfsdk:"connect_timeout"`

	// TLS settings
	StartTLS      types.Bool   `tfsdk:"start_tls"`
	SkipTLSVerify types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile types.String `tfsdk:"tls_ca_cert_file"`
	TLSCACertDir  types.String `tfsdk:"tls_ca_cert_dir"`

	// Paged search settings
	PageSize       types.Int64  `tfsdk:"page_size"`
	PagingEncoding types.String `tfsdk:"paging_encoding"`

	// Connection pool settings
	MaxConnections types.Int64 `tfsdk:"max_connections"`
	MaxRetries     types.Int64 `tfsdk:"max_retries"`

	// Zimbra tools
	BinDir         types.String `tfsdk:"zimbra_bin_dir"`
	RunAs          types.String `tfsdk:"run_as"`
	CommandTimeout types.Int64  `tfsdk:"command_timeout"`
}

func (p *ZimbraProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "zimbra"
	resp.Version = p.version
}

func (p *ZimbraProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The Zimbra provider manages the configuration of a Zimbra Collaboration server. " +
			"Current values are read from the Zimbra LDAP directory with paged searches and from `localconfig.xml`; " +
			"changes are made with the Zimbra tools (`zmprov`, `zmlocalconfig`, `zmzimletctl`, `zmvolume`), " +
			"so the provider must run on a Zimbra mailbox server. " +
			"Connection settings not given here are read from `localconfig.xml`.",
		Attributes: map[string]schema.Attribute{
			// Connection settings
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: "LDAP URL of the Zimbra directory (e.g., `ldap://mail.example.com:389`). " +
					"Several space separated URLs are tried in order. Defaults to `ldap_master_url` from localconfig. " +
					"Can be set via the `ZIMBRA_LDAP_URL` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"bind_dn": schema.StringAttribute{
				MarkdownDescription: "DN for the simple bind. Defaults to `zimbra_ldap_userdn` from localconfig. " +
					"Can be set via the `ZIMBRA_BIND_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for the simple bind. Defaults to `zimbra_ldap_password` from localconfig. " +
					"Can be set via the `ZIMBRA_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"localconfig_path": schema.StringAttribute{
				MarkdownDescription: "Path to `localconfig.xml`. Defaults to `" + localconfig.DefaultPath + "`. " +
					"Can be set via the `ZIMBRA_LOCALCONFIG` environment variable.",
				Optional: true,
			},
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Connection and request timeout in seconds. Defaults to `30`. " +
					"Can be set via the `ZIMBRA_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},

			// TLS settings
			"start_tls": schema.BoolAttribute{
				MarkdownDescription: "Upgrade `ldap://` connections with StartTLS. Defaults to `true` when localconfig sets both " +
					"`ldap_starttls_supported` and `zimbra_require_interprocess_security`. " +
					"Can be set via the `ZIMBRA_START_TLS` environment variable.",
				Optional: true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `ZIMBRA_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to a PEM CA bundle used to verify the directory certificate. " +
					"Can be set via the `ZIMBRA_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_dir": schema.StringAttribute{
				MarkdownDescription: "Directory of PEM CA certificates. Defaults to `" + localconfig.DefaultCACertDir + "` when it exists. " +
					"Can be set via the `ZIMBRA_TLS_CA_CERT_DIR` environment variable.",
				Optional: true,
			},

			// Paged search settings
			"page_size": schema.Int64Attribute{
				MarkdownDescription: "Number of entries requested per page of a paged search. Defaults to `400`. " +
					"Can be set via the `ZIMBRA_PAGE_SIZE` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.Between(1, 100000),
				},
			},
			"paging_encoding": schema.StringAttribute{
				MarkdownDescription: "Encoding of the paged results control: `named` uses the standard control, " +
					"`legacy` sends a raw critical control holding the BER encoded size and cookie. Defaults to `named`. " +
					"Can be set via the `ZIMBRA_PAGING_ENCODING` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.CaseInsensitiveOneOf("named", "legacy"),
				},
			},

			// Connection pool settings
			"max_connections": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of pooled directory connections. Defaults to `10`. " +
					"Can be set via the `ZIMBRA_MAX_CONNECTIONS` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.Between(1, ldapclient.MaxConnectionPoolLimit),
				},
			},
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of retries for connection establishment and single searches. Defaults to `3`. " +
					"Can be set via the `ZIMBRA_MAX_RETRIES` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},

			// Zimbra tools
			"zimbra_bin_dir": schema.StringAttribute{
				MarkdownDescription: "Directory holding the Zimbra tools. Defaults to `/opt/zimbra/bin`. " +
					"Can be set via the `ZIMBRA_BIN_DIR` environment variable.",
				Optional: true,
			},
			"run_as": schema.StringAttribute{
				MarkdownDescription: "User the Zimbra tools run as. Defaults to `zimbra`; switching user requires running as root. " +
					"Can be set via the `ZIMBRA_RUN_AS` environment variable.",
				Optional: true,
			},
			"command_timeout": schema.Int64Attribute{
				MarkdownDescription: "Timeout in seconds for one Zimbra tool invocation. Defaults to `600`. " +
					"Can be set via the `ZIMBRA_COMMAND_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *ZimbraProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		// A CA bundle has no effect when verification is skipped
		providervalidator.Conflicting(
			path.MatchRoot("skip_tls_verify"),
			path.MatchRoot("tls_ca_cert_file"),
		),
		providervalidator.Conflicting(
			path.MatchRoot("skip_tls_verify"),
			path.MatchRoot("tls_ca_cert_dir"),
		),
	}
}

func (p *ZimbraProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data ZimbraProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Configure logging subsystems and set up provider context
	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring Zimbra provider", map[string]any{
		"version": p.version,
	})

	localConfigPath := getStringValue(data.LocalConfig, "ZIMBRA_LOCALCONFIG")
	if localConfigPath == "" {
		localConfigPath = localconfig.DefaultPath
	}

	config := buildLDAPConfig(ctx, &data, localConfigPath, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	start := time.Now()
	client, err := ldapclient.NewClient(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Failed to create LDAP client", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Create LDAP Client",
			"An unexpected error occurred when creating the LDAP client. "+
				"If the error is not clear, please contact the provider developers.\n\n"+
				"LDAP Client Error: "+err.Error(),
		)
		return
	}

	start = time.Now()
	if err := client.Connect(ctx); err != nil {
		tflog.Error(ctx, "Connection test failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		client.Close()

		summary := "Unable to Connect to the Zimbra Directory"
		if ldapclient.IsAuthenticationError(err) {
			summary = "Authentication Failed"
		}
		resp.Diagnostics.AddError(
			summary,
			"The provider could not establish a connection to the Zimbra LDAP directory. "+
				"Please verify your configuration settings and localconfig.\n\n"+
				"Connection Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Connection established successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	runner := buildRunner(&data)
	manager := zimbra.NewManager(client, zmcmd.NewProvisioner(runner))
	manager.LocalConfigPath = localConfigPath

	tflog.Info(ctx, "Zimbra provider configured successfully", map[string]any{
		"bin_dir": runner.BinDir,
		"run_as":  runner.RunAs,
	})

	// Make the manager available to resources and data sources
	resp.DataSourceData = manager
	resp.ResourceData = manager
}

// configureLogging adds persistent fields to all provider logs.
func (p *ZimbraProvider) configureLogging(ctx context.Context) context.Context {
	ctx = initializeLogging(ctx)
	ctx = tflog.SetField(ctx, "provider", "zimbra")
	ctx = tflog.SetField(ctx, "provider_version", p.version)

	tflog.Debug(ctx, "Zimbra provider logging configured")

	return ctx
}

// buildLDAPConfig constructs the LDAP client configuration from provider
// config and environment variables, falling back to localconfig.xml for
// the URL, bind DN, password and StartTLS setting.
func buildLDAPConfig(ctx context.Context, data *ZimbraProviderModel, localConfigPath string, diags *diag.Diagnostics) *ldapclient.ConnectionConfig {
	ldapURL := getStringValue(data.LdapURL, "ZIMBRA_LDAP_URL")
	bindDN := getStringValue(data.BindDN, "ZIMBRA_BIND_DN")
	password := getStringValue(data.Password, "ZIMBRA_PASSWORD")

	config := ldapclient.DefaultConfig()

	if ldapURL == "" || bindDN == "" || password == "" {
		lc, err := localconfig.Load(localConfigPath)
		if err != nil {
			diags.AddError(
				"Missing Connection Configuration",
				"ldap_url, bind_dn and password were not all configured and localconfig could not be read. "+
					"Either set them (or ZIMBRA_LDAP_URL, ZIMBRA_BIND_DN and ZIMBRA_PASSWORD) or run the provider on a Zimbra server.\n\n"+
					"Localconfig Error: "+err.Error(),
			)
			return config
		}

		settings, err := lc.ConnectionSettings()
		if err != nil {
			diags.AddError(
				"Incomplete Localconfig",
				"Connection settings could not be derived from "+lc.Path()+": "+err.Error(),
			)
			return config
		}

		tflog.Debug(ctx, "Using connection settings from localconfig", map[string]any{
			"path": lc.Path(),
		})

		config = settings.LDAPConfig()
	}

	if ldapURL != "" {
		config.LDAPURLs = strings.Fields(ldapURL)
	}
	if bindDN != "" {
		config.BindDN = bindDN
	}
	if password != "" {
		config.Password = password
	}

	config.StartTLS = getBoolValue(data.StartTLS, "ZIMBRA_START_TLS", config.StartTLS)
	config.SkipTLSVerify = getBoolValue(data.SkipTLSVerify, "ZIMBRA_SKIP_TLS_VERIFY", false)
	if caFile := getStringValue(data.TLSCACertFile, "ZIMBRA_TLS_CA_CERT_FILE"); caFile != "" {
		config.TLSCACertFile = caFile
	}
	if caDir := getStringValue(data.TLSCACertDir, "ZIMBRA_TLS_CA_CERT_DIR"); caDir != "" {
		config.TLSCACertDir = caDir
	}
	if config.SkipTLSVerify {
		config.TLSCACertFile = ""
		config.TLSCACertDir = ""
	}

	if timeout := getInt64Value(data.ConnectTimeout, "ZIMBRA_CONNECT_TIMEOUT", 30); timeout > 0 {
		config.Timeout = time.Duration(timeout) * time.Second
	}

	if pageSize := getInt64Value(data.PageSize, "ZIMBRA_PAGE_SIZE", int64(ldapclient.DefaultPageSize)); pageSize > 0 {
		config.PageSize = uint32(pageSize)
	}

	if encoding := getStringValue(data.PagingEncoding, "ZIMBRA_PAGING_ENCODING"); encoding != "" {
		parsed, err := ldapclient.ParseControlEncoding(strings.ToLower(encoding))
		if err != nil {
			diags.AddAttributeError(path.Root("paging_encoding"), "Invalid Paging Encoding", err.Error())
			return config
		}
		config.PagingEncoding = parsed
	}

	if maxConnections := getInt64Value(data.MaxConnections, "ZIMBRA_MAX_CONNECTIONS", 10); maxConnections > 0 {
		config.MaxConnections = int(maxConnections)
	}

	if maxRetries := getInt64Value(data.MaxRetries, "ZIMBRA_MAX_RETRIES", 3); maxRetries >= 0 {
		config.MaxRetries = int(maxRetries)
	}

	if len(config.LDAPURLs) == 0 || !config.HasAuthentication() {
		diags.AddError(
			"Missing Connection Configuration",
			"An LDAP URL and a bind DN are required. Set ldap_url and bind_dn, the ZIMBRA_LDAP_URL and ZIMBRA_BIND_DN "+
				"environment variables, or ldap_master_url and zimbra_ldap_userdn in localconfig.",
		)
	}

	return config
}

// buildRunner configures how the Zimbra tools are invoked.
func buildRunner(data *ZimbraProviderModel) *zmcmd.ExecRunner {
	runner := zmcmd.NewExecRunner()

	if binDir := getStringValue(data.BinDir, "ZIMBRA_BIN_DIR"); binDir != "" {
		runner.BinDir = binDir
	}
	if runAs := getStringValue(data.RunAs, "ZIMBRA_RUN_AS"); runAs != "" {
		runner.RunAs = runAs
	}
	if timeout := getInt64Value(data.CommandTimeout, "ZIMBRA_COMMAND_TIMEOUT", 0); timeout > 0 {
		runner.Timeout = time.Duration(timeout) * time.Second
	}

	return runner
}

// Helper functions for configuration value resolution

func getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ZimbraProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewDomainResource,
		NewAccountResource,
		NewAccountAliasResource,
		NewCosAttributeResource,
		NewConfigAttributeResource,
		NewServerAttributeResource,
		NewZimletCosResource,
		NewVolumeCompressionResource,
		NewLocalConfigResource,
	}
}

func (p *ZimbraProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewLDAPAttributeDataSource,
		NewLDAPSearchDataSource,
	}
}

func (p *ZimbraProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		func() function.Function { return &EntryDNFunction{kind: "cos"} },
		func() function.Function { return &EntryDNFunction{kind: "server"} },
		func() function.Function { return &EntryDNFunction{kind: "domain"} },
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &ZimbraProvider{
			version: version,
		}
	}
}
