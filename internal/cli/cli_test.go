package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddrm/pse25/internal/catalog"
	"github.com/oddrm/pse25/internal/client"
	"github.com/oddrm/pse25/internal/config"
	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/logsink"
	"github.com/oddrm/pse25/internal/scheduler"
	"github.com/oddrm/pse25/internal/service"
	"github.com/oddrm/pse25/internal/tracker"
	"github.com/oddrm/pse25/internal/transport/grpchealth"
	handler "github.com/oddrm/pse25/internal/transport/http"
	"github.com/oddrm/pse25/tests/helpers"
)

type fixture struct {
	url   string
	sched *scheduler.Manual
	svc   *service.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sched := scheduler.NewManual()
	cat := catalog.New(nil)
	sink := logsink.New()
	trk := tracker.New(sched, cat, sink, tracker.Options{
		TickInterval:  100 * time.Millisecond,
		Step:          5,
		FinalizeDelay: 500 * time.Millisecond,
	})
	svc := service.New(helpers.NewTestSQLiteStore(t), cat, trk, sink, config.Default(), zerolog.Nop())

	srv := httptest.NewServer(handler.NewServer(svc, nil, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &fixture{url: srv.URL, sched: sched, svc: svc}
}

func (f *fixture) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--server", f.url, "--grpc", ""}, args...)
	code := Execute(BuildInfo{Version: "test"}, IOStreams{In: strings.NewReader(""), Out: &out, ErrOut: &errOut}, full)
	return out.String(), errOut.String(), code
}

func TestPluginsCommand(t *testing.T) {
	f := newFixture(t)

	out, _, code := f.run(t, "plugins")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Compress Files")
	assert.Contains(t, out, "Generate Text")
	assert.Contains(t, out, "Index Database")

	out, _, code = f.run(t, "--json", "plugins")
	require.Equal(t, ExitSuccess, code)
	var plugins []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &plugins))
	assert.Len(t, plugins, 3)
}

func TestRunCommandLifecycle(t *testing.T) {
	f := newFixture(t)

	out, _, code := f.run(t, "run", "1", "--entry", "log.mcap")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Started run_")
	assert.Contains(t, out, "log.mcap")

	out, _, code = f.run(t, "run", "1", "--entry", "log.mcap")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Not started: "+tracker.ErrDuplicateRun.Error())

	out, _, code = f.run(t, "runs")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Compress Files")
	assert.Contains(t, out, "0%")

	f.sched.Advance(2500 * time.Millisecond)

	out, _, code = f.run(t, "runs")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No active runs.")

	out, _, code = f.run(t, "logs", "--limit", "1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `Plugin "Compress Files" on "log.mcap" finished.`)
}

func TestEnableDisableCommands(t *testing.T) {
	f := newFixture(t)

	out, _, code := f.run(t, "disable", "2")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Plugin \"Generate Text\" disabled.\n", out)

	out, _, code = f.run(t, "enable", "2")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Plugin \"Generate Text\" enabled.\n", out)

	_, errOut, code := f.run(t, "enable", "42")
	assert.Equal(t, ExitNotFound, code)
	assert.Contains(t, errOut, "ERROR:")

	_, _, code = f.run(t, "enable", "abc")
	assert.Equal(t, ExitInvalidUsage, code)
}

func TestEntriesCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateEntry(ctx, &domain.Entry{Name: "log.mcap", Path: "/data/log.mcap", Platform: "Platform A", Size: 1024, Tags: []string{"Tag A"}}))

	out, _, code := f.run(t, "entries", "--search", "log")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "/data/log.mcap")
	assert.Contains(t, out, "Tag A")

	out, _, code = f.run(t, "entries", "--search", "nothing-matches")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No entries.")
}

func TestHealthCommand(t *testing.T) {
	f := newFixture(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hs := grpchealth.NewServer(zerolog.Nop())
	go func() { _ = hs.Serve(lis) }()
	t.Cleanup(hs.Stop)

	args := func(extra ...string) []string {
		return append([]string{"--server", f.url, "--grpc", lis.Addr().String()}, extra...)
	}
	var out bytes.Buffer
	code := Execute(BuildInfo{}, IOStreams{Out: &out, ErrOut: &bytes.Buffer{}}, args("health"))
	assert.Equal(t, ExitUnavailable, code, "NOT_SERVING until marked ready")
	assert.Contains(t, out.String(), "grpc: NOT_SERVING")

	hs.SetServing(true)
	out.Reset()
	code = Execute(BuildInfo{}, IOStreams{Out: &out, ErrOut: &bytes.Buffer{}}, args("health"))
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out.String(), "http: healthy")
	assert.Contains(t, out.String(), "grpc: SERVING")
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	_, errOut, code := f.run(t, "frobnicate")
	assert.Equal(t, ExitInvalidUsage, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	code := Execute(BuildInfo{Version: "1.2.3"}, IOStreams{Out: &out, ErrOut: &bytes.Buffer{}}, []string{"version"})
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out.String(), "bagctl version 1.2.3")
	assert.Contains(t, out.String(), "commit: unknown")
}

func TestMapExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "coded", err: &ExitError{Code: ExitUnavailable, Err: errors.New("down")}, want: ExitUnavailable},
		{name: "not found", err: &client.APIError{Status: 404, Message: "plugin not found"}, want: ExitNotFound},
		{name: "bad request", err: &client.APIError{Status: 400, Message: "bad"}, want: ExitInvalidUsage},
		{name: "server error", err: &client.APIError{Status: 500, Message: "boom"}, want: ExitRuntimeFailure},
		{name: "unknown command", err: errors.New("unknown command \"x\" for \"bagctl\""), want: ExitInvalidUsage},
		{name: "generic", err: errors.New("boom"), want: ExitRuntimeFailure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mapExitCode(tc.err))
		})
	}
}
