package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/plugin"
)

func pluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the plugin manifests found in the plugin directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			registry := plugin.NewRegistry(cfg.PluginDir,
				plugin.WithPattern(cfg.PluginPattern),
				plugin.WithLogger(logger),
			)
			defer registry.Close(cmd.Context())

			available, err := registry.GetAvailablePlugins(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(available)
		},
	}
}
