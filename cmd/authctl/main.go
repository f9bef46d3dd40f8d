// Command authctl runs the authcore HTTP service and the operator tooling
// around it: account management, password and TOTP helpers, token
// inspection and a session-store load test.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/internal/logging"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authctl",
		Short: "authcore service and operator tooling",
		Long: `authctl serves the authcore HTTP API and bundles the tools an
operator needs around it.

Configuration is resolved from defaults, then every --config YAML file in
order, then environment variables (JWT_SECRET_KEY, MAX_ATTEMPTS,
LOCKOUT_DURATION, SESSION_TIMEOUT, MAX_CONCURRENT_SESSIONS, TOKEN_TTL,
TOTP_ISSUER, LOG_LEVEL, LOG_FILE, LOG_DEV). A .env file is loaded first
when present.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFiles(cmd)
		},
	}
	rootCmd.PersistentFlags().StringSlice("config", nil, "YAML config file (repeatable, later files win)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("authctl v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newHashCmd())
	rootCmd.AddCommand(newVerifyHashCmd())
	rootCmd.AddCommand(newAssessCmd())
	rootCmd.AddCommand(newTOTPCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newLintCmd())
	rootCmd.AddCommand(newLoadtestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFiles loads --env-file and, when APP_ENV is set, the matching
// .env.<APP_ENV> next to it. Variables already in the environment win.
func loadEnvFiles(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("env-file")
	if strings.TrimSpace(path) == "" {
		return nil
	}
	_ = godotenv.Load(path)
	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env != "" {
		_ = godotenv.Load(path + "." + env)
	}
	return nil
}

func configPaths(cmd *cobra.Command) []string {
	paths, _ := cmd.Flags().GetStringSlice("config")
	return paths
}

// loadConfig returns the validated configuration. Commands that sign or
// verify tokens need it.
func loadConfig(cmd *cobra.Command) (authcore.Config, error) {
	return authcore.LoadConfig(configPaths(cmd)...)
}

// readConfig returns the configuration without requiring a token secret.
func readConfig(cmd *cobra.Command) (authcore.Config, error) {
	return authcore.ReadConfig(configPaths(cmd)...)
}

// newLogger builds the process logger from cfg, falling back to the
// LOG_* environment when cfg has no logging section.
func newLogger(cfg *authcore.Config) (*zap.Logger, error) {
	if cfg == nil {
		return logging.Init(logging.ConfigFromEnv())
	}
	return logging.Init(cfg.Logging.Logger())
}
