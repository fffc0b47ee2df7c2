// Package commands implements the fieldmap administration CLI.
package commands

import (
	"fmt"

	"github.com/benvon/workitem-fieldmap/internal/catalog"
	"github.com/benvon/workitem-fieldmap/internal/config"
	"github.com/benvon/workitem-fieldmap/internal/kv"
	"github.com/benvon/workitem-fieldmap/internal/logger"
	"github.com/benvon/workitem-fieldmap/internal/presets"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Runtime holds the connections a command works against
type Runtime struct {
	Logger  *zap.Logger
	KV      kv.Store
	Presets presets.Store
	// Catalog is nil when no tracker credentials are configured
	Catalog catalog.Fetcher
	Project string
}

// Close releases the runtime's connections
func (rt *Runtime) Close() error {
	_ = logger.Sync(rt.Logger)
	return rt.KV.Close()
}

// RuntimeLoader builds a Runtime. Tests substitute an in-memory one.
type RuntimeLoader func(debug bool) (*Runtime, error)

// LoadRuntime builds a Runtime from environment configuration
func LoadRuntime(debug bool) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	zapLogger, err := logger.New(debug || cfg.ServerDebugMode, true)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	store, err := kv.Open(cfg.PresetBackend, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s preset store: %w", cfg.PresetBackend, err)
	}

	rt := &Runtime{
		Logger: zapLogger,
		KV:     store,
		Presets: presets.NewKVStore(store,
			presets.WithKey(cfg.PresetStoreKey),
			presets.WithLogger(zapLogger),
		),
		Project: cfg.AzureDevOpsProject,
	}

	if cfg.CatalogConfigured() {
		client, err := catalog.NewAzureDevOpsClient(catalog.AzureDevOpsConfig{
			BaseURL:             cfg.AzureDevOpsBaseURL,
			Organization:        cfg.AzureDevOpsOrg,
			PersonalAccessToken: cfg.AzureDevOpsPAT,
			BearerToken:         cfg.AzureDevOpsBearerToken,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create catalog client: %w", err)
		}
		rt.Catalog = client
	}

	return rt, nil
}

// NewRootCmd creates the fieldmap root command
func NewRootCmd(load RuntimeLoader) *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "fieldmap",
		Short:         "Administration tool for work-item field mappings",
		Long:          "CLI tool for managing field-mapping presets and inspecting the Azure DevOps field catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	open := func() (*Runtime, error) {
		return load(debug)
	}

	rootCmd.AddCommand(newPresetsCmd(open))
	rootCmd.AddCommand(newCatalogCmd(open))
	return rootCmd
}
