package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/config"
	"github.com/tabletdrivercleanup/tdc/internal/modules"
)

var (
	version  = "4.1.0"
	cfgFile  string
	opts     options
	exitCode = exitOK
)

// options holds the command line switches. They only ever narrow what the
// config file allows.
type options struct {
	dryRun   bool
	dump     bool
	noPrompt bool
	noCache  bool
	noUpdate bool
	disabled map[string]*bool
}

var rootCmd = &cobra.Command{
	Use:           "tabletdrivercleanup",
	Short:         "Remove tablet drivers, devices and vendor software",
	Long:          `TabletDriverCleanup removes leftover tablet drivers, device nodes and vendor driver packages from Windows.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := runRoot(cmd.Context())
		exitCode = code
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TabletDriverCleanup v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.SaveTo(config.Default(), cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

var identifiersCmd = &cobra.Command{
	Use:   "identifiers",
	Short: "List the uninstall criteria each module would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return listIdentifiers(cmd.Context(), cmd.OutOrStdout(), cfg)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVarP(&opts.dryRun, "dry-run", "d", false, "Only print what would be done, do not actually do anything")
	flags.BoolVarP(&opts.dump, "dump", "D", false, "Dump information about the system")
	flags.BoolVarP(&opts.noPrompt, "no-prompt", "s", false, "Do not prompt for user input. Useful for scripting")
	flags.BoolVarP(&opts.noCache, "no-cache", "c", false, "Do not use cached identifiers")
	flags.BoolVarP(&opts.noUpdate, "no-update", "u", false, "Do not check online for identifier updates")

	opts.disabled = make(map[string]*bool)
	for _, meta := range modules.Metadata() {
		opts.disabled[meta.CLIName] = flags.Bool("no-"+meta.CLIName, false, "Do not "+meta.Help)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is tabletdrivercleanup.yaml beside the executable)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(identifiersCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
	os.Exit(exitCode)
}

// loadConfig loads the config file and applies the command line switches
// over it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	opts.apply(cfg)
	cfg.ResolvePaths(config.ExecutableDir())

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "config: %v\n", w)
	}
	if result.HasFatals() {
		return nil, fmt.Errorf("invalid config: %w", result.Fatals[0])
	}
	return cfg, nil
}

func (o options) apply(cfg *config.Config) {
	if o.dryRun {
		cfg.DryRun = true
	}
	if o.noPrompt {
		cfg.Interactive = false
	}
	if o.noCache {
		cfg.UseCache = false
	}
	if o.noUpdate {
		cfg.AllowUpdates = false
	}
	for cliName, off := range o.disabled {
		if off != nil && *off {
			cfg.DisableModule(cliName)
		}
	}
}

func sessionState(cfg *config.Config) cleanup.State {
	return cleanup.State{Interactive: cfg.Interactive, DryRun: cfg.DryRun}
}
