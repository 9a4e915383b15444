package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download [area-id]",
	Short: "Download a map area for offline use",
	Long:  "Download the packages of one preplanned area. Interrupting cancels the download and removes partial files.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		areaID := args[0]

		withController(cmd, func(ctx context.Context, c *services.Controller, log *slog.Logger) error {
			fmt.Printf("📥 Downloading area %s\n", areaID)

			last := data.Idle
			for status := range c.Repository.DownloadMapArea(ctx, c.WebMapID(), areaID) {
				if !status.Equal(last) {
					fmt.Println(statusLine(areaID, status))
				}
				last = status
			}

			switch {
			case last.Kind == data.StatusCompleted:
				fmt.Println("\n✅ Download complete!")
				return nil
			case ctx.Err() != nil:
				// Interrupted before the job finished; it is still running.
				c.Tracker.Cancel(areaID)
				return fmt.Errorf("download of %s interrupted", areaID)
			case last.Err != nil:
				return fmt.Errorf("download failed: %s: %w", last.Reason, last.Err)
			default:
				return fmt.Errorf("download failed: %s", last)
			}
		})
	},
}
