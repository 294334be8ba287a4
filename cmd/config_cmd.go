package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate the brcamerge project configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the resolved config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		sinks := shown.Sinks
		if sinks.Postgres != nil {
			pg := *sinks.Postgres
			pg.ConnectionString = maskSecret(pg.ConnectionString)
			sinks.Postgres = &pg
		}
		if sinks.MongoDB != nil {
			mg := *sinks.MongoDB
			mg.ConnectionString = maskSecret(mg.ConnectionString)
			sinks.MongoDB = &mg
		}
		shown.Sinks = sinks

		data, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Printf("# %s\n%s", configPath(), data)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
