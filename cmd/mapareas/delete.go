package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [area-id]",
	Short: "Delete the offline copy of a map area",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		areaID := args[0]

		withController(cmd, func(ctx context.Context, c *services.Controller, log *slog.Logger) error {
			if !c.Repository.DeleteDownloadedMapArea(areaID) {
				return data.NewFailure("cannot delete "+areaID, data.ErrNothingToDelete)
			}
			fmt.Printf("🗑  Deleted %s\n", areaID)
			return nil
		})
	},
}
