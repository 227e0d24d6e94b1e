package provider_test

import (
	"slices"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	this "github.com/zimbra-tools/terraform-provider-zimbra/internal/provider"
)

func newProvider(t *testing.T, version string) provider.ProviderWithFunctions {
	t.Helper()

	p, ok := this.New(version)().(provider.ProviderWithFunctions)
	require.True(t, ok, "provider does not implement ProviderWithFunctions")
	return p
}

// TestProviderMetadata tests the provider metadata.
func TestProviderMetadata(t *testing.T) {
	for _, version := range []string{"test", "dev", "1.0.0", ""} {
		resp := &provider.MetadataResponse{}
		newProvider(t, version).Metadata(t.Context(), provider.MetadataRequest{}, resp)

		assert.Equal(t, "zimbra", resp.TypeName)
		assert.Equal(t, version, resp.Version)
	}
}

// TestProviderSchema tests the provider schema.
func TestProviderSchema(t *testing.T) {
	resp := &provider.SchemaResponse{}
	newProvider(t, "test").Schema(t.Context(), provider.SchemaRequest{}, resp)
	require.False(t, resp.Diagnostics.HasError(), "schema diagnostics: %v", resp.Diagnostics)

	attributes := []string{
		"ldap_url", "bind_dn", "password", "localconfig_path", "connect_timeout",
		"start_tls", "skip_tls_verify", "tls_ca_cert_file", "tls_ca_cert_dir",
		"page_size", "paging_encoding",
		"max_connections", "max_retries",
		"zimbra_bin_dir", "run_as", "command_timeout",
	}
	for _, name := range attributes {
		assert.Contains(t, resp.Schema.Attributes, name)
	}

	assert.True(t, resp.Schema.Attributes["password"].IsSensitive())
	for name, attr := range resp.Schema.Attributes {
		assert.False(t, attr.IsRequired(), "%s must be optional so localconfig.xml can supply it", name)
	}
}

// TestProviderSchema_DocumentsEnvironment checks every attribute names its
// ZIMBRA_* fallback.
func TestProviderSchema_DocumentsEnvironment(t *testing.T) {
	resp := &provider.SchemaResponse{}
	newProvider(t, "test").Schema(t.Context(), provider.SchemaRequest{}, resp)

	envVars := map[string]string{
		"ldap_url":         "ZIMBRA_LDAP_URL",
		"bind_dn":          "ZIMBRA_BIND_DN",
		"password":         "ZIMBRA_PASSWORD",
		"localconfig_path": "ZIMBRA_LOCALCONFIG",
		"page_size":        "ZIMBRA_PAGE_SIZE",
		"paging_encoding":  "ZIMBRA_PAGING_ENCODING",
		"zimbra_bin_dir":   "ZIMBRA_BIN_DIR",
	}
	for name, envVar := range envVars {
		assert.Contains(t, resp.Schema.Attributes[name].GetMarkdownDescription(), envVar, name)
	}
}

// TestProviderResources tests the provider resources.
func TestProviderResources(t *testing.T) {
	p := newProvider(t, "test")

	var names []string
	for _, factory := range p.Resources(t.Context()) {
		r := factory()
		require.NotNil(t, r)

		meta := &resource.MetadataResponse{}
		r.Metadata(t.Context(), resource.MetadataRequest{ProviderTypeName: "zimbra"}, meta)
		names = append(names, meta.TypeName)

		schemaResp := &resource.SchemaResponse{}
		r.Schema(t.Context(), resource.SchemaRequest{}, schemaResp)
		assert.False(t, schemaResp.Diagnostics.HasError(), "%s schema: %v", meta.TypeName, schemaResp.Diagnostics)
		assert.False(t, schemaResp.Schema.ValidateImplementation(t.Context()).HasError(), meta.TypeName)
		assert.Contains(t, schemaResp.Schema.Attributes, "id", meta.TypeName)

		_, importable := r.(resource.ResourceWithImportState)
		assert.True(t, importable, "%s does not support import", meta.TypeName)
	}

	slices.Sort(names)
	assert.Equal(t, []string{
		"zimbra_account",
		"zimbra_account_alias",
		"zimbra_config_attribute",
		"zimbra_cos_attribute",
		"zimbra_domain",
		"zimbra_localconfig",
		"zimbra_server_attribute",
		"zimbra_volume_compression",
		"zimbra_zimlet_cos",
	}, names)
}

// TestProviderDataSources tests the provider data sources.
func TestProviderDataSources(t *testing.T) {
	p := newProvider(t, "test")

	var names []string
	for _, factory := range p.DataSources(t.Context()) {
		d := factory()
		require.NotNil(t, d)

		meta := &datasource.MetadataResponse{}
		d.Metadata(t.Context(), datasource.MetadataRequest{ProviderTypeName: "zimbra"}, meta)
		names = append(names, meta.TypeName)

		schemaResp := &datasource.SchemaResponse{}
		d.Schema(t.Context(), datasource.SchemaRequest{}, schemaResp)
		assert.False(t, schemaResp.Diagnostics.HasError(), "%s schema: %v", meta.TypeName, schemaResp.Diagnostics)
	}

	slices.Sort(names)
	assert.Equal(t, []string{"zimbra_ldap_attribute", "zimbra_ldap_search"}, names)
}

// TestProviderConfigValidators tests the provider config validators.
func TestProviderConfigValidators(t *testing.T) {
	p, ok := this.New("test")().(provider.ProviderWithConfigValidators)
	require.True(t, ok)

	validators := p.ConfigValidators(t.Context())
	require.NotEmpty(t, validators)
	for _, v := range validators {
		assert.NotNil(t, v)
		assert.NotEmpty(t, v.Description(t.Context()))
	}
}

// TestProviderFunctions tests the provider functions.
func TestProviderFunctions(t *testing.T) {
	var names []string
	for _, factory := range newProvider(t, "test").Functions(t.Context()) {
		fn := factory()
		require.NotNil(t, fn)

		meta := &function.MetadataResponse{}
		fn.Metadata(t.Context(), function.MetadataRequest{}, meta)
		names = append(names, meta.Name)
	}

	slices.Sort(names)
	assert.Equal(t, []string{"cos_dn", "domain_dn", "server_dn"}, names)
}

// TestProviderServer tests provider server creation.
func TestProviderServer(t *testing.T) {
	server, err := providerserver.NewProtocol6WithError(this.New("test")())()
	require.NoError(t, err)
	assert.NotNil(t, server)
}
