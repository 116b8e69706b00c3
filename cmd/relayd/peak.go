package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"archean-status-relay/internal/db"
	"archean-status-relay/internal/stats"
	"archean-status-relay/internal/store"
)

func peakCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "peak",
		Short: "Print the highest recorded player count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Init(&cfg.Database)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			s := store.NewGormStore(gormDB)
			defer s.Close()

			peak, err := stats.NewRecorder(s).Peak(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if peak == nil {
				fmt.Fprintln(out, "no statistics recorded yet")
				return nil
			}
			fmt.Fprintf(out, "%d/%d players on %s (version %s)\n",
				peak.PlayerCount, peak.MaxPlayers, peak.Time.UTC().Format(time.RFC3339), peak.Version)
			return nil
		},
	}
}
