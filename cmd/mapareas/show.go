package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [map-id]",
	Short: "Show what would be opened for a map",
	Long:  "Resolve the web map (no argument) or a downloaded area into its URL or offline packages",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withController(cmd, func(ctx context.Context, c *services.Controller, log *slog.Logger) error {
			mapType, id := data.MapTypeRemote, c.WebMapID()
			if len(args) == 1 && args[0] != id {
				mapType, id = data.MapTypeLocalStorage, args[0]
			}

			r, err := c.Repository.GetRenderableMap(ctx, mapType, id)
			if err != nil {
				return err
			}

			fmt.Printf("🗺  %s\n\n", r.Title)
			if r.URL != "" {
				fmt.Printf("  URL:        %s\n", r.URL)
				return nil
			}
			fmt.Printf("  Location:   %s\n", r.Dir)
			fmt.Printf("  Packages:   %s\n", strings.Join(r.Packages, ", "))
			fmt.Printf("  Maps:       %s\n", strings.Join(r.Maps, ", "))
			fmt.Printf("  Size:       %s\n", humanize.Bytes(uint64(max(r.Bytes, 0))))
			if !r.DownloadedAt.IsZero() {
				fmt.Printf("  Downloaded: %s\n", humanize.Time(r.DownloadedAt))
			}
			return nil
		})
	},
}
