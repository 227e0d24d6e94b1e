package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// logSubsystems are the tflog subsystems used by the provider and the
// packages it drives. Each level is read from TF_LOG_PROVIDER_ZIMBRA_<NAME>.
var logSubsystems = []string{"provider", "ldap", "pool", "zimbra", "zmcmd"}

// initializeLogging registers the provider's logging subsystems. It should
// be called at the beginning of each data source Read method and resource
// Create/Read/Update/Delete method.
func initializeLogging(ctx context.Context) context.Context {
	for _, subsystem := range logSubsystems {
		ctx = tflog.NewSubsystem(ctx, subsystem,
			tflog.WithLevelFromEnv("TF_LOG_PROVIDER_ZIMBRA_"+strings.ToUpper(subsystem)))
	}

	return tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, "provider", "password", "bind_password")
}
