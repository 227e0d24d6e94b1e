// Command zmstate reconciles a Zimbra server with a desired-state file
// without Terraform.
package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/mjwhitta/cli"
	"github.com/rs/zerolog"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/localconfig"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/state"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zimbra"
	"github.com/zimbra-tools/terraform-provider-zimbra/internal/zmcmd"
)

var version = "dev"

// Exit codes
const (
	ExitSuccess = iota
	ExitError
	ExitMissingArg
)

type options struct {
	config      string
	localconfig string
	dryRun      bool
	binDir      string
	runAs       string
	logLevel    string
	logFormat   string
	pageSize    int
}

var flags options

func parseFlags() {
	cli.Align = true
	cli.Banner = fmt.Sprintf("%s [OPTIONS] <command>", os.Args[0])
	cli.Info(
		"Reconcile a Zimbra server with a desired-state file.",
		"",
		"Current values are read from the directory, localconfig.xml and",
		"zmvolume. The Zimbra tools only run for items that differ.",
	)
	cli.ExitStatus(
		"0 - Every item is, or in dry run would be, in the desired state",
		"1 - At least one item failed",
		"2 - Missing command",
	)

	cli.Flag(&flags.config, "c", "config", "/opt/zimbra/conf/zmstate.toml", "Desired-state file")
	cli.Flag(&flags.localconfig, "l", "localconfig", localconfig.DefaultPath, "Path to localconfig.xml")
	cli.Flag(&flags.dryRun, "n", "dry-run", false, "Report changes without running any command")
	cli.Flag(&flags.binDir, "b", "bin-dir", "/opt/zimbra/bin", "Directory of the Zimbra tools")
	cli.Flag(&flags.runAs, "u", "run-as", "zimbra", "User the Zimbra tools run as")
	cli.Flag(&flags.pageSize, "p", "page-size", int(ldap.DefaultPageSize), "LDAP page size")
	cli.Flag(&flags.logLevel, "v", "log-level", "info", "Log level (debug, info, warn, error)")
	cli.Flag(&flags.logFormat, "f", "log-format", "console", "Log format (console, json)")

	cli.Section("Commands",
		"  apply      Reconcile every item of the desired-state file\n",
		"  ping       Check that the directory answers\n",
		"  validate   Check the desired-state file and exit",
	)

	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage(ExitMissingArg)
	}
}

func main() {
	parseFlags()

	logger, err := newLogger(loggerConfig{Level: flags.logLevel, Format: flags.logFormat}, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cli.Arg(0), flags, os.Stdout, logger)
	stop()

	os.Exit(code)
}

func run(ctx context.Context, command string, opts options, stdout io.Writer, logger zerolog.Logger) int {
	switch command {
	case "validate":
		desired, err := loadState(opts.config, logger)
		if err != nil {
			logger.Error().Err(err).Str("config", opts.config).Msg("Invalid desired state")
			return ExitError
		}
		fmt.Fprintf(stdout, "%s: %d items\n", opts.config, desired.Len())
		return ExitSuccess

	case "apply":
		return apply(ctx, opts, stdout, logger)

	case "ping":
		return ping(ctx, opts, stdout, logger)

	case "version":
		fmt.Fprintln(stdout, version)
		return ExitSuccess

	default:
		logger.Error().Str("command", command).Msg("Unknown command")
		return ExitMissingArg
	}
}

func loadState(path string, logger zerolog.Logger) (*state.DesiredState, error) {
	desired, err := state.Load(path)
	if err != nil {
		return nil, err
	}
	for _, key := range desired.Undecoded {
		logger.Warn().Str("key", key).Msg("Unknown key in desired state ignored")
	}
	return desired, nil
}

func apply(ctx context.Context, opts options, stdout io.Writer, logger zerolog.Logger) int {
	desired, err := loadState(opts.config, logger)
	if err != nil {
		logger.Error().Err(err).Str("config", opts.config).Msg("Invalid desired state")
		return ExitError
	}

	manager, closer, err := newManager(ctx, opts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot reach the Zimbra directory")
		return ExitError
	}
	defer closer()

	items, err := state.Apply(ctx, manager, desired, func(item state.Item) {
		fmt.Fprint(stdout, formatItem(item))
		if item.Err != nil {
			logger.Debug().Err(item.Err).Str("kind", item.Kind).Msg("Item failed")
		}
	})
	if err != nil {
		logger.Error().Err(err).Int("completed", len(items)).Msg("Reconcile interrupted")
		return ExitError
	}

	summary := state.Summarize(items)
	logger.Info().
		Bool("dry_run", opts.dryRun).
		Int("unchanged", summary[zimbra.StatusUnchanged]).
		Int("changed", summary[zimbra.StatusChanged]).
		Int("would_change", summary[zimbra.StatusWouldChange]).
		Int("failed", summary[zimbra.StatusFailed]).
		Msg("Reconcile finished")

	if summary.Failed() {
		return ExitError
	}
	return ExitSuccess
}

// connect opens the directory described by the localconfig file.
func connect(ctx context.Context, opts options, logger zerolog.Logger) (ldap.Client, error) {
	lc, err := localconfig.Load(opts.localconfig)
	if err != nil {
		return nil, err
	}

	settings, err := lc.ConnectionSettings()
	if err != nil {
		return nil, err
	}

	config := settings.LDAPConfig()
	if opts.pageSize > 0 {
		config.PageSize = uint32(opts.pageSize)
	}

	logger.Debug().
		Strs("ldap_urls", config.LDAPURLs).
		Str("bind_dn", config.BindDN).
		Bool("start_tls", config.StartTLS).
		Msg("Connecting to directory")

	client, err := ldap.NewClient(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newManager(ctx context.Context, opts options, logger zerolog.Logger) (*zimbra.Manager, func(), error) {
	client, err := connect(ctx, opts, logger)
	if err != nil {
		return nil, nil, err
	}

	runner := zmcmd.NewExecRunner()
	runner.BinDir = opts.binDir
	runner.RunAs = opts.runAs

	manager := zimbra.NewManager(client, zmcmd.NewProvisioner(runner))
	manager.LocalConfigPath = opts.localconfig
	manager.DryRun = opts.dryRun

	return manager, func() { client.Close() }, nil
}

func ping(ctx context.Context, opts options, stdout io.Writer, logger zerolog.Logger) int {
	client, err := connect(ctx, opts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot reach the Zimbra directory")
		return ExitError
	}
	defer client.Close()

	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Directory did not answer")
		return ExitError
	}

	stats := client.Stats()
	fmt.Fprintf(stdout, "directory answered in %s (%d connections, %d errors)\n",
		time.Since(start).Round(time.Millisecond), stats.Total, stats.Errors)
	return ExitSuccess
}

// formatItem renders one result followed by its changes.
func formatItem(item state.Item) string {
	var b strings.Builder

	result := item.Result
	if result == nil {
		fmt.Fprintf(&b, "[%s] %s: %v\n", zimbra.StatusFailed, item.Kind, item.Err)
		return b.String()
	}

	fmt.Fprintf(&b, "[%s] %s %s: %s\n", result.Status, item.Kind, result.Name, result.Comment)
	for _, key := range slices.Sorted(maps.Keys(result.Changes)) {
		change := result.Changes[key]
		fmt.Fprintf(&b, "    %s: %q -> %q\n", key, change.Old, change.New)
	}
	return b.String()
}
