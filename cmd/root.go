package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brcamerge/brcamerge/internal/config"
	"github.com/brcamerge/brcamerge/internal/engine"
	"github.com/brcamerge/brcamerge/internal/logging"
	"github.com/brcamerge/brcamerge/internal/metrics"
	"github.com/brcamerge/brcamerge/internal/metrics/prompush"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "brcamerge",
	Short: "brcamerge — breast cancer cohort column reconciliation",
	Long: `brcamerge reconciles the columns of the METABRIC, SCAN-B and TCGA-BRCA
cohorts into one unified patient table.

Typical flow: columns → suggest → review → consolidate → report.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./brcamerge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath
}

// loadConfig loads and validates the project config.
func loadConfig() (*config.Config, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no config at %s; run 'brcamerge init' first", path)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", path, err)
	}
	return cfg, nil
}

// newEngine loads the config and wires logging and metrics. The returned
// closer flushes the log file.
func newEngine() (*engine.Engine, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, closer, err := logging.Setup(level, cfg.Logging.Directory, os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Metrics.Pushgateway != "" {
		backend, err := prompush.NewBackend(cfg.Metrics.Job, cfg.Metrics.Pushgateway)
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		metrics.SetBackend(backend)
	}
	return engine.New(cfg, configPath(), logger), closer, nil
}
