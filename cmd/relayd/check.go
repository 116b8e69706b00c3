package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"archean-status-relay/internal/directory"
)

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Look the tracked server up in the directory once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			snap, err := directory.NewClient(cfg.Directory).FindByAddress(cmd.Context(), cfg.Tracking.Host, cfg.Tracking.Port)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if snap == nil {
				fmt.Fprintf(out, "%s:%d is not listed\n", cfg.Tracking.Host, cfg.Tracking.Port)
				return nil
			}
			fmt.Fprintf(out, "%s [%d] %s\n", snap.Name, snap.ID, snap.Address)
			fmt.Fprintf(out, "  players:  %d/%d\n", snap.Players, snap.MaxPlayers)
			fmt.Fprintf(out, "  gamemode: %s\n", snap.Gamemode)
			fmt.Fprintf(out, "  password: %s\n", snap.Password)
			fmt.Fprintf(out, "  version:  %s (%s)\n", snap.Version, snap.Branch)
			return nil
		},
	}
}
