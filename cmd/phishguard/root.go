package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "phishguard",
	Short: "Phishing risk assessment agent for URLs.",
	Long: `phishguard scans URLs before you visit them. Known-bad look-alike domains
are caught locally; everything else is scored by the classification service
and cached for five minutes.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.phishguard/config.yaml)")

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the settings database (default $HOME/.phishguard)")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "Store settings in Postgres instead of the local sqlite file")
	rootCmd.PersistentFlags().String("clickhouse-dsn", "", "Write scan events to ClickHouse")
	rootCmd.PersistentFlags().String("api-url", "", "Override the classification service URL stored in settings")
	rootCmd.PersistentFlags().Duration("classify-timeout", 5*time.Second, "Classification request timeout")
	rootCmd.PersistentFlags().Int("cache-size", 100, "Result cache capacity")
	rootCmd.PersistentFlags().Duration("cache-ttl", 5*time.Minute, "Result cache entry lifetime")

	for _, name := range []string{"log-level", "data-dir", "postgres-dsn", "clickhouse-dsn", "api-url", "classify-timeout", "cache-size", "cache-ttl"} {
		_ = viper.BindPFlag(configKey(name), rootCmd.PersistentFlags().Lookup(name))
	}
}

// configKey maps a flag name to its viper key ("log-level" -> "log_level").
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".phishguard"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PHISHGUARD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}
}

// dataDir is the directory holding local state, created on demand.
func dataDir() (string, error) {
	dir := viper.GetString("data_dir")
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("dataDir: %w", err)
		}
		dir = filepath.Join(home, ".phishguard")
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("dataDir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("dataDir: %w", err)
	}
	return dir, nil
}
