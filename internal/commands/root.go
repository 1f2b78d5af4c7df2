package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trivy-plugin-exposure-risk/internal/composite"
	"trivy-plugin-exposure-risk/internal/config"
	"trivy-plugin-exposure-risk/internal/report"
)

// Version information - set via ldflags during build
var (
	version = "dev"
	commit  = "unknown"
)

const (
	defaultConfigFilename = ".exposure-risk"
	envPrefix             = "EXPOSURE_RISK"
)

// app carries what the subcommands share: the viper instance the flags are
// bound to and the clock handed to the engine.
type app struct {
	v       *viper.Viper
	cfgFile string
	clock   composite.Clock
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand(&app{v: viper.New()}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	defaults := config.Defaults()

	root := &cobra.Command{
		SilenceUsage:      true,
		Use:               "exposure-risk",
		Short:             "Exposure factor and risk of known vulnerabilities",
		Version:           fmt.Sprintf("%s (%s)", version, commit),
		DisableAutoGenTag: true,
		Long: `Exposure factor and risk of known vulnerabilities

The exposure factor of a CVE is its CVSS impact score amplified by the
probability that it is or has been exploited, taken as the strongest of its
EPSS score, its presence in the CISA KEV catalog and the cumulative LEV
estimate. Configuration can be provided via a ./.exposure-risk.yaml config
file, environment variables (prefix EXPOSURE_RISK_) or a .env file.`,
		Example: `  # Exposure factor of log4shell today
  exposure-risk ef CVE-2021-44228

  # Risk for a high value asset as of a past date
  exposure-risk risk CVE-2021-44228 --date 2022-01-01 --av-c 3 --av-i 3 --av-a 2

  # Risk of a whole Trivy scan
  trivy image -f json alpine:3.10 | exposure-risk assess`,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := cmd.Flags().GetString("logLevel")
			if err != nil {
				return err
			}
			switch level {
			case "debug":
				initLogger(slog.LevelDebug)
			case "warn":
				initLogger(slog.LevelWarn)
			case "error":
				initLogger(slog.LevelError)
			default:
				initLogger(slog.LevelInfo)
			}

			if err := config.LoadDotEnv(); err != nil {
				slog.Warn("could not load .env file", "err", err)
			}
			return a.initializeConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("logLevel", "l", "info", "Set the log level. Options: debug, info, warn, error")
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./.exposure-risk.yaml)")
	pf.String("date", "", "evaluation date YYYY-MM-DD (default today)")
	pf.Float64("lambda", defaults.Lambda, "amplification of the impact by the exploitation probability, within [0, 1]")
	pf.Float64("wc", defaults.WC, "weight of the confidentiality impact")
	pf.Float64("wi", defaults.WI, "weight of the integrity impact")
	pf.Float64("wa", defaults.WA, "weight of the availability impact")
	pf.String("mc", "", "Modified Confidentiality (X, N, L, H), CVSS 3.x only")
	pf.String("mi", "", "Modified Integrity (X, N, L, H), CVSS 3.x only")
	pf.String("ma", "", "Modified Availability (X, N, L, H), CVSS 3.x only")
	pf.Bool("smart", false, "apply modified impact metrics only when they lower the base impact")
	pf.Int("window", defaults.Window, "LEV sampling window in days")
	pf.Duration("timeout", defaults.Timeout, "timeout of every feed request")
	pf.String("nvd-api-key", "", "NVD API key for higher rate limits; or set NVD_API_KEY env")
	pf.StringP("output", "o", defaults.Output, "output format: table, json or yaml")
	pf.String("nvd-url", "", "NVD CVE API endpoint")
	pf.String("epss-url", "", "FIRST EPSS API endpoint")
	pf.String("kev-url", "", "CISA KEV catalog URL")
	for _, name := range []string{"nvd-url", "epss-url", "kev-url"} {
		_ = pf.MarkHidden(name)
	}

	root.AddCommand(
		newExposureFactorCommand(a),
		newRiskCommand(a),
		newBatchCommand(a),
		newLEVCommand(a),
		newTimelineCommand(a),
		newAssessCommand(a),
	)
	return root
}

// InitLogger initializes the logger with a tint handler.
func initLogger(level slog.Leveler) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

func (a *app) initializeConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName(defaultConfigFilename)
		a.v.AddConfigPath(".")
	}

	// a missing config file is fine, a broken one is not
	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		slog.Debug("no config file found")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()
	config.SetDefaults(a.v)

	a.bindFlags(cmd)
	return nil
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func (a *app) bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && a.v.IsSet(f.Name) {
			val := a.v.Get(f.Name)
			cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)) // nolint: errcheck
		}
		if err := a.v.BindPFlag(f.Name, f); err != nil {
			slog.Error("could not bind flag to viper", "err", err)
		}
	})
}

func (a *app) runtime() (*config.Runtime, error) {
	o, err := config.Load(a.v)
	if err != nil {
		return nil, err
	}
	return config.Build(o, a.clock)
}

func (a *app) render(cmd *cobra.Command, o config.Options, view any) error {
	format, err := report.ParseFormat(o.Output)
	if err != nil {
		return err
	}
	return report.Render(cmd.OutOrStdout(), format, view)
}

func addAssetFlags(cmd *cobra.Command) {
	d := config.Defaults()
	cmd.Flags().Int("av-c", d.AVC, "confidentiality value of the asset (1 low, 2 moderate, 3 high)")
	cmd.Flags().Int("av-i", d.AVI, "integrity value of the asset (1 low, 2 moderate, 3 high)")
	cmd.Flags().Int("av-a", d.AVA, "availability value of the asset (1 low, 2 moderate, 3 high)")
	cmd.Flags().Float64("aro", d.ARO, "annual rate of occurrence")
}

func addWorkersFlag(cmd *cobra.Command) {
	cmd.Flags().Int("workers", config.Defaults().Workers, "number of CVEs evaluated concurrently")
}
