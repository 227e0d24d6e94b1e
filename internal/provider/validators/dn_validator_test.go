package validators_test

import (
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/provider/validators"
)

func TestDNValidator(t *testing.T) {
	t.Parallel()

	type testCase struct {
		val         types.String
		allowEmpty  bool
		expectError bool
		summary     string
		detail      string
	}

	testCases := map[string]testCase{
		"valid DN simple": {
			val: types.StringValue("cn=zimbra"),
		},
		"valid COS DN": {
			val: types.StringValue("cn=default,cn=cos,cn=zimbra"),
		},
		"valid account DN": {
			val: types.StringValue("uid=admin,ou=people,dc=example,dc=com"),
		},
		"valid DN with escaped characters": {
			val: types.StringValue("cn=Sales\\, EMEA,cn=cos,cn=zimbra"),
		},
		"valid DN with spaces": {
			val: types.StringValue("cn=Mail Admins,cn=admins,cn=zimbra"),
		},
		"invalid DN empty": {
			val:         types.StringValue(""),
			expectError: true,
			summary:     "Invalid Distinguished Name",
			detail:      "The value \"\" is not a valid Distinguished Name format:",
		},
		"empty base DN": {
			val:        types.StringValue(""),
			allowEmpty: true,
		},
		"invalid DN malformed": {
			val:         types.StringValue("invalid-dn"),
			expectError: true,
			summary:     "Invalid Distinguished Name",
			detail:      "The value \"invalid-dn\" is not a valid Distinguished Name format:",
		},
		"invalid base DN malformed": {
			val:         types.StringValue("cn=config,,"),
			allowEmpty:  true,
			expectError: true,
			summary:     "Invalid Distinguished Name",
			detail:      "The value \"cn=config,,\" is not a valid Distinguished Name format:",
		},
		"invalid DN missing attribute": {
			val:         types.StringValue("=config,cn=zimbra"),
			expectError: true,
			summary:     "Invalid Distinguished Name",
			detail:      "The value \"=config,cn=zimbra\" is not a valid Distinguished Name format:",
		},
		"null value": {
			val: types.StringNull(),
		},
		"unknown value": {
			val: types.StringUnknown(),
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			request := validator.StringRequest{
				Path:        path.Root("test"),
				ConfigValue: test.val,
			}
			response := validator.StringResponse{}

			v := validators.IsValidDN()
			if test.allowEmpty {
				v = validators.IsValidBaseDN()
			}
			v.ValidateString(t.Context(), request, &response)

			if !response.Diagnostics.HasError() && test.expectError {
				t.Fatal("expected error, got no error")
			}

			if response.Diagnostics.HasError() && !test.expectError {
				t.Fatalf("got unexpected error: %s", response.Diagnostics)
			}

			if test.expectError {
				if len(response.Diagnostics) != 1 {
					t.Fatalf("expected exactly 1 error, got %d", len(response.Diagnostics))
				}

				err := response.Diagnostics[0]
				if err.Summary() != test.summary {
					t.Errorf("expected summary %q, got %q", test.summary, err.Summary())
				}

				if test.detail != "" && !strings.HasPrefix(err.Detail(), test.detail) {
					t.Errorf("expected detail to start with %q, got %q", test.detail, err.Detail())
				}
			}
		})
	}
}

func TestDNValidatorDescription(t *testing.T) {
	validator := validators.IsValidDN()

	expected := "value must be a valid Distinguished Name (DN)"
	if validator.Description(t.Context()) != expected {
		t.Errorf("expected description %q, got %q", expected, validator.Description(t.Context()))
	}

	if validator.MarkdownDescription(t.Context()) != expected {
		t.Errorf("expected markdown description %q, got %q", expected, validator.MarkdownDescription(t.Context()))
	}

	if !strings.Contains(validators.IsValidBaseDN().Description(t.Context()), "root DSE") {
		t.Error("base DN description should mention the root DSE")
	}
}
