package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
)

// Test environment configuration constants.
const (
	// Environment variables for test configuration.
	EnvTestLDAPURL     = "ZIMBRA_TEST_LDAP_URL"
	EnvTestBindDN      = "ZIMBRA_TEST_BIND_DN"
	EnvTestPassword    = "ZIMBRA_TEST_PASSWORD"
	EnvTestDomain      = "ZIMBRA_TEST_DOMAIN"
	EnvTestLocalConfig = "ZIMBRA_TEST_LOCALCONFIG"

	// Default values for testing.
	DefaultTestDomain = "example.com"
	DefaultTestBindDN = "uid=zimbra,cn=admins,cn=zimbra"

	// Test object name prefix to avoid conflicts.
	TestAccountPrefix = "tf-test-"
)

// TestConfig holds common test configuration.
type TestConfig struct {
	LDAPURL     string
	BindDN      string
	Password    string
	Domain      string
	LocalConfig string
}

// GetTestConfig returns the test configuration from environment variables.
func GetTestConfig() *TestConfig {
	return &TestConfig{
		LDAPURL:     os.Getenv(EnvTestLDAPURL),
		BindDN:      getEnvWithDefault(EnvTestBindDN, DefaultTestBindDN),
		Password:    os.Getenv(EnvTestPassword),
		Domain:      getEnvWithDefault(EnvTestDomain, DefaultTestDomain),
		LocalConfig: os.Getenv(EnvTestLocalConfig),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsAccTest returns true if acceptance tests should run.
func IsAccTest() bool {
	return os.Getenv("TF_ACC") != ""
}

// SkipIfNotAccTest skips the test if TF_ACC is not set.
func SkipIfNotAccTest(t *testing.T) {
	if !IsAccTest() {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}
}

// testAccPreCheckWithConfig skips unless a Zimbra server is reachable
// through the environment or the local localconfig.xml.
func testAccPreCheckWithConfig(t *testing.T) *TestConfig {
	SkipIfNotAccTest(t)

	config := GetTestConfig()

	if config.LDAPURL == "" && config.LocalConfig == "" {
		if _, err := os.Stat("/opt/zimbra/conf/localconfig.xml"); err != nil {
			t.Skipf("Skipping test: set %s or %s, or run on a Zimbra server", EnvTestLDAPURL, EnvTestLocalConfig)
		}
	}

	if config.LDAPURL != "" && config.Password == "" {
		t.Skipf("Skipping test: %s must be set with %s", EnvTestPassword, EnvTestLDAPURL)
	}

	return config
}

// testProviderConfig generates provider configuration for tests.
func testProviderConfig() string {
	config := GetTestConfig()

	var providerConfig strings.Builder
	providerConfig.WriteString("provider \"zimbra\" {\n")

	if config.LDAPURL != "" {
		fmt.Fprintf(&providerConfig, "  ldap_url = %q\n", config.LDAPURL)
		fmt.Fprintf(&providerConfig, "  bind_dn  = %q\n", config.BindDN)
		fmt.Fprintf(&providerConfig, "  password = %q\n", config.Password)
	}
	if config.LocalConfig != "" {
		fmt.Fprintf(&providerConfig, "  localconfig_path = %q\n", config.LocalConfig)
	}

	providerConfig.WriteString("}\n")
	return providerConfig.String()
}

// GenerateTestName generates a unique test name with timestamp.
func GenerateTestName(prefix string) string {
	timestamp := time.Now().Format("20060102-150405")
	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("%s%s-%s", prefix, timestamp, shortUUID)
}

// testLDAPClient connects to the directory the acceptance tests run against.
func testLDAPClient(ctx context.Context) (ldap.Client, error) {
	config := GetTestConfig()

	ldapConfig := ldap.DefaultConfig()
	ldapConfig.LDAPURLs = []string{config.LDAPURL}
	ldapConfig.BindDN = config.BindDN
	ldapConfig.Password = config.Password
	ldapConfig.MaxConnections = 1

	client, err := ldap.NewClient(ctx, ldapConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create LDAP client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", config.LDAPURL, err)
	}
	return client, nil
}

// testCheckLDAPEntryExists verifies that an entry matching filter exists
// under base. It is a no-op when the tests run against localconfig.xml
// only.
func testCheckLDAPEntryExists(base, filter string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		if GetTestConfig().LDAPURL == "" {
			return nil
		}

		ctx := context.Background()
		client, err := testLDAPClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		exists, err := client.Exists(ctx, base, filter)
		if err != nil {
			return fmt.Errorf("looking up %s under %q: %w", filter, base, err)
		}
		if !exists {
			return fmt.Errorf("no entry matches %s under %q", filter, base)
		}
		return nil
	}
}
