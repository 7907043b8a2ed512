// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the toolhub command-line
// application.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhub/pkg/cache"
	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/hub"
	"github.com/stacklok/toolhub/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "toolhub",
	DisableAutoGenTag: true,
	Short:             "Tool hub - aggregate MCP servers and HTTP APIs behind one tool interface",
	Long: `Toolhub aggregates heterogeneous tool providers into a single hub:

- Native MCP servers over stdio, SSE or streamable HTTP
- Arbitrary HTTP APIs wrapped as tools, with auth, retry and caching
- Logical server groups with tool filters and validation keys

Servers connect and reconnect independently; partial availability is the
normal operating mode.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the toolhub CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to toolhub configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool hub",
		Long: `Start the tool hub: connect to every configured MCP server, build the
group tables and serve tool invocations until interrupted.`,
		RunE: runServe,
	}

	cmd.Flags().String("redis-addr", "", "Redis address for a shared cache backend (host:port); empty uses in-memory")
	if err := viper.BindPFlag("redis-addr", cmd.Flags().Lookup("redis-addr")); err != nil {
		logger.Errorf("Error binding redis-addr flag: %v", err)
	}
	cmd.Flags().Bool("no-cache", false, "Disable result caching")
	if err := viper.BindPFlag("no-cache", cmd.Flags().Lookup("no-cache")); err != nil {
		logger.Errorf("Error binding no-cache flag: %v", err)
	}
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the toolhub configuration file: YAML syntax, required fields,
duplicate ids and transport types. Group problems are reported as warnings
because the hub degrades them to fallback groups at runtime.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no configuration file specified, use --config flag")
			}

			snapshot, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			if err := snapshot.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			logger.Infof("Configuration is valid")
			logger.Infof("  Servers: %d", len(snapshot.Servers))
			logger.Infof("  Groups: %d", len(snapshot.Groups))
			logger.Infof("  API tools: %d", len(snapshot.APITools))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("toolhub version: %s", getVersion())
		},
	}
}

// getVersion returns the version string (set at build time via ldflags).
func getVersion() string {
	return version
}

var version = "dev"

// runServe implements the serve command logic.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("no configuration file specified, use --config flag")
	}

	logger.Infof("Loading configuration from: %s", configPath)
	snapshot, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	opts := []hub.Option{
		hub.WithCacheEnabled(!viper.GetBool("no-cache")),
	}
	if addr := viper.GetString("redis-addr"); addr != "" {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      addr,
			KeyPrefix: "toolhub:cache:",
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warnf("Error closing redis store: %v", err)
			}
		}()
		opts = append(opts, hub.WithCacheStore(store))
	}

	h := hub.New(opts...)
	if err := h.Initialize(ctx, snapshot); err != nil {
		return fmt.Errorf("hub initialization failed: %w", err)
	}

	logger.Info("Tool hub running, press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultConnectTimeout)
	defer cancel()
	return h.Shutdown(shutdownCtx)
}
