package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oddrm/pse25/internal/domain"
)

func newPluginsCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the plugin catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			plugins, err := app.apiClient().ListPlugins(ctx)
			if err != nil {
				return err
			}
			if app.Opts.JSON {
				return app.printJSON(plugins)
			}

			rows := make([][]string, len(plugins))
			for i, p := range plugins {
				rows[i] = []string{strconv.Itoa(p.ID), p.Name, yesNo(p.Enabled), p.Description}
			}
			fmt.Fprintln(app.IO.Out, renderTable([]string{"ID", "NAME", "ENABLED", "DESCRIPTION"}, rows))
			return nil
		},
	}
}

func newEnableCommand(app *AppContext, enabled bool) *cobra.Command {
	use, short := "disable <plugin-id>", "Refuse new runs of a plugin"
	if enabled {
		use, short = "enable <plugin-id>", "Allow new runs of a plugin"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePluginID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			plugin, err := app.apiClient().SetPluginEnabled(ctx, id, enabled)
			if err != nil {
				return err
			}
			if app.Opts.JSON {
				return app.printJSON(plugin)
			}
			state := "disabled"
			if plugin.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(app.IO.Out, "Plugin %q %s.\n", plugin.Name, state)
			return nil
		},
	}
}

func newRunCommand(app *AppContext) *cobra.Command {
	var entry string

	cmd := &cobra.Command{
		Use:   "run <plugin-id>",
		Short: "Start a plugin run",
		Long:  "Start a plugin run on one entry (--entry) or globally. A start that is refused, e.g. because the same run is already active, is reported but is not an error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePluginID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			res, err := app.apiClient().StartRun(ctx, id, entry)
			if err != nil {
				return err
			}
			if app.Opts.JSON {
				return app.printJSON(res)
			}
			if !res.Started {
				fmt.Fprintf(app.IO.Out, "Not started: %s\n", res.Reason)
				return nil
			}
			fmt.Fprintf(app.IO.Out, "Started %s on %s\n", res.Run.RunID, res.Run.Scope.Label())
			return nil
		},
	}
	cmd.Flags().StringVarP(&entry, "entry", "e", "", "Entry name to run on (default: global)")
	return cmd
}

func newRunsCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List active runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			c := app.apiClient()
			runs, err := c.ListRuns(ctx)
			if err != nil {
				return err
			}
			if app.Opts.JSON {
				return app.printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(app.IO.Out, "No active runs.")
				return nil
			}

			names := map[int]string{}
			if plugins, err := c.ListPlugins(ctx); err == nil {
				for _, p := range plugins {
					names[p.ID] = p.Name
				}
			}
			fmt.Fprintln(app.IO.Out, renderTable([]string{"RUN", "PLUGIN", "SCOPE", "PROGRESS", "PHASE"}, runRows(runs, names)))
			return nil
		},
	}
}

func runRows(runs []domain.Run, names map[int]string) [][]string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		name, ok := names[r.PluginID]
		if !ok {
			name = strconv.Itoa(r.PluginID)
		}
		rows[i] = []string{r.RunID, name, r.Scope.Label(), fmt.Sprintf("%d%%", r.Progress), string(r.Phase)}
	}
	return rows
}

func newLogsCommand(app *AppContext) *cobra.Command {
	var after, limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the session log, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if after < 0 || limit < 0 {
				return withExitCode(ExitInvalidUsage, fmt.Errorf("--after and --limit must not be negative"))
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			logs, err := app.apiClient().Logs(ctx, after, limit)
			if err != nil {
				return err
			}
			if app.Opts.JSON {
				return app.printJSON(logs)
			}
			for _, entry := range logs {
				fmt.Fprintf(app.IO.Out, "%4d %s %-5s %s\n", entry.ID, entry.Time, entry.Kind, entry.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&after, "after", 0, "Only entries with an id greater than this")
	cmd.Flags().IntVar(&limit, "limit", 0, "At most this many entries (0: all)")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
