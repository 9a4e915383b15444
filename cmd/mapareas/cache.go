package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kerbaras/mapareas/pkg/services"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the offline catalog",
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Forget the cached catalog",
	Long:  "Drop the in-memory and on-disk catalog snapshot. Downloaded areas are kept.",
	Run: func(cmd *cobra.Command, args []string) {
		withController(cmd, func(ctx context.Context, c *services.Controller, log *slog.Logger) error {
			if err := c.Areas.Purge(); err != nil {
				return err
			}
			fmt.Println("🧹 Catalog snapshot cleared")
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(purgeCmd)
}
