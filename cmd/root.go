// Package cmd assembles the securai command tree: generate runs the policy
// generation pipeline against scan reports, resolve finds a scannable DAST
// target, serve exposes the pipeline over HTTP, and track manages the
// remediation lifecycle of generated policies.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/observability"
)

var (
	cfgFile string

	// appConfig is populated by the root PersistentPreRunE and read by every
	// subcommand's RunE after it re-unmarshals flag overrides.
	appConfig *config.Config
)

// NewRootCommand builds the root command and attaches all subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "securai",
		Short: "securai turns scanner findings into tracked security policies.",
		Long: `securai ingests SAST, SCA and DAST scan reports, retrieves matching
NIST CSF and ISO 27001 guidance, drafts one remediation policy per finding
with an LLM, scores the drafts, and tracks each policy through its
remediation lifecycle.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before any command, setting up config and logging.
			if err := initializeConfig(); err != nil {
				return err
			}

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				// Initialize a fallback logger so the error itself is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "securai"})
				return fmt.Errorf("failed to load config: %w", err)
			}
			appConfig = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting securai", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.securai/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command under the supplied signal-aware context and
// returns its error for main to translate into an exit code.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Use the logger if available, otherwise fall back to stderr.
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig layers defaults, an optional config file, and SECURAI_*
// environment variables into the global viper instance.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".securai"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SECURAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}
