package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newEntriesCommand(app *AppContext) *cobra.Command {
	var search string
	var pageSize int

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List recorded entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			entries, err := app.apiClient().ListEntries(ctx, search, pageSize)
			if err != nil {
				return err
			}
			if app.Opts.JSON {
				return app.printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(app.IO.Out, "No entries.")
				return nil
			}

			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					strconv.FormatInt(e.ID, 10),
					e.Name,
					e.Path,
					e.Platform,
					strconv.FormatInt(e.Size, 10),
					strings.Join(e.Tags, ", "),
				}
			}
			fmt.Fprintln(app.IO.Out, renderTable([]string{"ID", "NAME", "PATH", "PLATFORM", "SIZE", "TAGS"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Match name, path, platform or tag")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Entries per page (server default when 0)")
	return cmd
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
