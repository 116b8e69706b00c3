package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"archean-status-relay/config"
	"archean-status-relay/internal/logger"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "Archean server status relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration (defaults to $CONFIG_PATH, then ./config/config.yaml)")
	cmd.AddCommand(peakCmd(&configPath))
	cmd.AddCommand(checkCmd(&configPath))
	return cmd
}

// loadConfig resolves the configuration path, loads it and sets up the global logger.
func loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log)
	for _, w := range cfg.Warnings {
		log.Warn().Str("path", path).Msg(w)
	}
	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}
