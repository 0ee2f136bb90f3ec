package cmd

import (
	"fmt"
	"os"
	"streamspace/engine/torrent"
	"streamspace/services"

	"github.com/spf13/cobra"
)

func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file.torrent>",
		Short: "Print the canonical job id and magnet link of a torrent file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			id, err := services.ExtractID(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, id)
			fmt.Fprintln(out, torrent.MagnetURI(id))
			return nil
		},
	}
}
