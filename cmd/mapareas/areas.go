package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/kerbaras/mapareas/pkg/app/components"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
	"github.com/spf13/cobra"
)

type areaRow struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Bytes  int64  `json:"bytes,omitempty"`
}

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "List the map areas of the web map",
	Long:  "Display every preplanned area of the configured web map with its download status",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		withController(cmd, func(ctx context.Context, c *services.Controller, log *slog.Logger) error {
			areas, err := c.Areas.ListAreas(ctx, c.WebMapID())
			if err != nil {
				return err
			}

			rows := make([]areaRow, 0, len(areas))
			for _, a := range areas {
				row := areaRow{ID: a.Area.ID, Title: a.Area.Title, Status: a.Status.String()}
				if a.Status.Kind == data.StatusCompleted {
					if size, err := c.Store.Size(a.Area.ID); err == nil {
						row.Bytes = size
					}
				}
				rows = append(rows, row)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			if len(rows) == 0 {
				fmt.Println("🗺  This web map has no preplanned areas.")
				return nil
			}
			printAreas(rows)
			return nil
		})
	},
}

func printAreas(rows []areaRow) {
	columns := []table.Column{
		{Title: "ID", Width: 34},
		{Title: "Title", Width: 30},
		{Title: "Status", Width: 16},
		{Title: "Size", Width: 10},
	}

	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		size := ""
		if r.Bytes > 0 {
			size = humanize.Bytes(uint64(r.Bytes))
		}
		tableRows = append(tableRows, table.Row{
			r.ID,
			truncateString(r.Title, 28),
			r.Status,
			size,
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows),
		table.WithFocused(false),
		table.WithHeight(len(tableRows)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)

	fmt.Printf("\n🗺  Map areas (%d)\n\n", len(rows))
	fmt.Println(t.View())
}

func truncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// statusLine renders one download status for terminal output.
func statusLine(id string, status data.DownloadStatus) string {
	line := fmt.Sprintf("  %s: %s", id, components.StatusText(status))
	if status.Kind == data.StatusInProgress {
		line += " " + components.SimpleProgress(status.Percent, 30)
	}
	return line
}

func init() {
	areasCmd.Flags().Bool("json", false, "Print the areas as JSON")
}
