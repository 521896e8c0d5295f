package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oddrm/pse25/internal/client"
	"github.com/oddrm/pse25/internal/transport/grpchealth"
	"github.com/oddrm/pse25/internal/tui"
)

func newWatchCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow active runs and the log in a terminal dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := client.StreamURL(app.Opts.Server)
			if err != nil {
				return withExitCode(ExitInvalidUsage, err)
			}

			dialCtx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			stream, err := client.Dial(dialCtx, addr)
			if err != nil {
				return withExitCode(ExitUnavailable, err)
			}
			defer stream.Close()

			if err := stream.SendHello("bagctl"); err != nil {
				return withExitCode(ExitUnavailable, fmt.Errorf("write hello: %w", err))
			}
			return tui.Run(stream, "bagdesk @ "+app.Opts.Server)
		},
	}
}

func newHealthCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the HTTP and gRPC health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			report := map[string]string{}
			var failed bool

			if resp, err := app.apiClient().Health(ctx); err != nil {
				report["http"] = err.Error()
				failed = true
			} else {
				report["http"] = resp["status"]
			}

			if app.Opts.GRPCAddr != "" {
				report["grpc"] = checkGRPC(ctx, app.Opts.GRPCAddr)
				if report["grpc"] != "SERVING" {
					failed = true
				}
			}

			if app.Opts.JSON {
				if err := app.printJSON(report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(app.IO.Out, "http: %s\n", report["http"])
				if grpcStatus, ok := report["grpc"]; ok {
					fmt.Fprintf(app.IO.Out, "grpc: %s\n", grpcStatus)
				}
			}
			if failed {
				return withExitCode(ExitUnavailable, fmt.Errorf("bagdesk is not healthy"))
			}
			return nil
		},
	}
}

func checkGRPC(ctx context.Context, addr string) string {
	status, err := grpchealth.Check(ctx, addr, grpchealth.ServiceName)
	if err != nil {
		return err.Error()
	}
	return status.String()
}
