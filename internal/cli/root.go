// Package cli implements the bagctl command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oddrm/pse25/internal/client"
)

const (
	defaultServer   = "http://localhost:8080"
	defaultGRPCAddr = "localhost:9090"
)

func Execute(build BuildInfo, streams IOStreams, args []string) int {
	app := &AppContext{Build: build, IO: streams}
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.ErrOut)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(streams.ErrOut, "ERROR:", err)
		return mapExitCode(err)
	}
	return ExitSuccess
}

func newRootCommand(app *AppContext) *cobra.Command {
	root := &cobra.Command{
		Use:               "bagctl",
		Short:             "Inspect recordings and run plugins on a bagdesk server",
		Long:              "bagctl talks to a bagdesk server: it lists plugins and entries, starts plugin runs and follows their progress.",
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	root.PersistentFlags().StringVarP(&app.Opts.Server, "server", "s", envOr("BAGDESK_URL", defaultServer), "bagdesk HTTP address")
	root.PersistentFlags().StringVar(&app.Opts.GRPCAddr, "grpc", envOr("BAGDESK_GRPC_ADDR", defaultGRPCAddr), "bagdesk gRPC health address")
	root.PersistentFlags().BoolVar(&app.Opts.JSON, "json", false, "Print JSON instead of tables")
	root.PersistentFlags().DurationVar(&app.Opts.Timeout, "timeout", 10*time.Second, "Request timeout")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(ExitInvalidUsage, err)
	})

	root.AddCommand(newPluginsCommand(app))
	root.AddCommand(newEnableCommand(app, true))
	root.AddCommand(newEnableCommand(app, false))
	root.AddCommand(newRunCommand(app))
	root.AddCommand(newRunsCommand(app))
	root.AddCommand(newLogsCommand(app))
	root.AddCommand(newEntriesCommand(app))
	root.AddCommand(newWatchCommand(app))
	root.AddCommand(newHealthCommand(app))
	root.AddCommand(newVersionCommand(app))

	return root
}

func (app *AppContext) apiClient() *client.Client {
	return client.New(app.Opts.Server)
}

func (app *AppContext) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if app.Opts.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, app.Opts.Timeout)
}

func (app *AppContext) printJSON(v interface{}) error {
	enc := json.NewEncoder(app.IO.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePluginID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, withExitCode(ExitInvalidUsage, fmt.Errorf("plugin id must be an integer, got %q", raw))
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newVersionCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version/build metadata",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(app)
		},
	}
}

func printVersion(app *AppContext) {
	version := app.Build.Version
	if version == "" {
		version = "dev"
	}
	commit := app.Build.Commit
	if commit == "" {
		commit = "unknown"
	}
	date := app.Build.Date
	if date == "" {
		date = "unknown"
	}

	fmt.Fprintf(app.IO.Out, "bagctl version %s\ncommit: %s\nbuild_date: %s\n", version, commit, date)
}
