// Package cli provides the command-line interface for the options desk.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"optiondesk/internal/config"
	"optiondesk/internal/logging"
	"optiondesk/internal/metrics"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Config is loaded by the root
// command before any subcommand runs.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	configDir string
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{
		Logger:  logger,
		Metrics: metrics.New(),
	}

	rootCmd := &cobra.Command{
		Use:   "optiondesk",
		Short: "Index options desk for NIFTY and SENSEX",
		Long: `optiondesk finds NIFTY and SENSEX option contracts, streams their prices and
derives entry, target and stop-loss levels with the margin each position needs.

Use 'optiondesk instruments search 24000' to find contracts and
'optiondesk watch <symbol>' to follow one live.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			app.configDir, _ = cmd.Flags().GetString("config")
			if app.configDir == "" {
				app.configDir = config.DefaultConfigDir()
			}
			cfg, err := config.Load(app.configDir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmdLogger := app.Logger.With().Str("command", cmd.CommandPath()).Logger()
			cmd.SetContext(logging.WithLogger(cmd.Context(), cmdLogger))
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/optiondesk)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newInstrumentsCmd(app))
	rootCmd.AddCommand(newCalcCmd(app))
	rootCmd.AddCommand(newBalanceCmd(app))
	rootCmd.AddCommand(newGTTCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("optiondesk v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.configDir})
				return
			}
			output.Println(app.configDir)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Credentials.Kite.AccessToken = logging.MaskCredential(c.Credentials.Kite.AccessToken)
	c.Catalog.RedisPassword = logging.MaskCredential(c.Catalog.RedisPassword)
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backend")
	output.Printf("  REST:            %s\n", cfg.Server.BaseURL)
	output.Printf("  Streams:         %s\n", cfg.Server.WSBaseURL)
	output.Printf("  Timeout:         %s\n", cfg.Server.Timeout)
	output.Println()

	output.Bold("Streams")
	output.Printf("  Index Mode:      %s\n", cfg.Streams.IndexMode)
	output.Printf("  Reconnect Delay: %s\n", cfg.Streams.ReconnectDelay)
	output.Printf("  Ping Interval:   %s\n", cfg.Streams.PingInterval)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Profit Goal:     %.0f\n", cfg.Trading.TargetProfitGoal)
	output.Printf("  Auto Trade:      %v\n", cfg.Trading.AutoTrade)
	output.Printf("  Underlying:      %s\n", cfg.Trading.DefaultUnderlying)
	output.Println()

	output.Bold("Catalog")
	output.Printf("  Supplier:        %s\n", cfg.Catalog.Supplier)
	output.Printf("  Cache:           %s\n", cfg.Catalog.CacheBackend)
	output.Println()

	output.Bold("Metrics")
	output.Printf("  Enabled:         %v\n", cfg.Metrics.Enabled)
	output.Printf("  Address:         %s\n", cfg.Metrics.Addr)
}
