// Package cmd provides the command-line interface for SODump. It wires
// configuration loading, logging setup and the crawl, reparse and
// export subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/YesIKnowIT/SODump/internal/config"
	"github.com/YesIKnowIT/SODump/internal/logging"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sodump",
	Short: "Harvest Stack Overflow view counts from the Wayback Machine",
	Long: `SODump walks the Wayback Machine's capture index for Stack Overflow
question pages, downloads the captures, and extracts historical view
counts and tags into a SQLite database.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the CLI under the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sodump.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-file", "", "log to this file in addition to the console")
	rootCmd.PersistentFlags().StringP("database", "d", "questions.db", "path to the SQLite database")

	binds := []struct {
		viperKey string
		flagName string
	}{
		{"log_level", "log-level"},
		{"log_file", "log-file"},
		{"database_path", "database"},
	}
	for _, bind := range binds {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.PersistentFlags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("sodump")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SODUMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, the config file, environment variables and
// flags, installs the logger, and validates the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := logging.DefaultOptions()
	opts.Level = logging.ParseLevel(viper.GetString("log_level"))
	opts.FilePath = viper.GetString("log_file")
	if err := logging.Setup(opts); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}

func showCurrentConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: configuration validation failed: %v\n\n", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Printf("# Current SODump configuration\n")
	fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("# Configuration file search path: ./sodump.yml\n")
	fmt.Printf("# Environment variables prefix: SODUMP_\n\n")
	fmt.Print(string(yamlData))
	return nil
}
