package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddrm/pse25/internal/catalog"
	"github.com/oddrm/pse25/internal/config"
	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/hub"
	"github.com/oddrm/pse25/internal/logsink"
	"github.com/oddrm/pse25/internal/policy"
	"github.com/oddrm/pse25/internal/protocol"
	"github.com/oddrm/pse25/internal/scheduler"
	"github.com/oddrm/pse25/internal/service"
	"github.com/oddrm/pse25/internal/tracker"
	handler "github.com/oddrm/pse25/internal/transport/http"
	"github.com/oddrm/pse25/internal/ws"
	"github.com/oddrm/pse25/tests/helpers"
)

func newServer(t *testing.T, sched scheduler.Scheduler) (*httptest.Server, *service.Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.ProgressStep = 50
	cfg.FinalizeDelay = 0

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	cat := catalog.New(nil)
	sink := logsink.New()
	trk := tracker.New(sched, cat, sink, tracker.Options{
		TickInterval:  cfg.TickInterval,
		Step:          cfg.ProgressStep,
		FinalizeDelay: cfg.FinalizeDelay,
	}, tracker.WithGate(policy.NewStartGate(engine, cat.Enabled)))
	svc := service.New(helpers.NewTestSQLiteStore(t), cat, trk, sink, cfg, zerolog.Nop())

	h := hub.NewHub(ws.SnapshotFunc(svc), zerolog.Nop())
	go h.Run(ctx)
	trk.Subscribe(h.PublishRun)
	sink.Subscribe(h.PublishLog)

	e := handler.NewServer(svc, ws.NewServer(cfg, h, svc, zerolog.Nop()), zerolog.Nop())
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestClientRunLifecycle(t *testing.T) {
	sched := scheduler.NewManual()
	srv, _ := newServer(t, sched)
	c := New(srv.URL + "/")
	ctx := context.Background()

	plugins, err := c.ListPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 3)
	assert.Equal(t, "Compress Files", plugins[0].Name)
	assert.True(t, plugins[0].Enabled)

	res, err := c.StartRun(ctx, 1, "log.mcap")
	require.NoError(t, err)
	require.True(t, res.Started)
	require.NotNil(t, res.Run)
	assert.Equal(t, domain.EntryScope("log.mcap"), res.Run.Scope)

	again, err := c.StartRun(ctx, 1, "log.mcap")
	require.NoError(t, err)
	assert.False(t, again.Started)

	runs, err := c.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	sched.Advance(20 * time.Millisecond)

	runs, err = c.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	logs, err := c.Logs(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, `Plugin "Compress Files" on "log.mcap" finished.`, logs[0].Message)

	newer, err := c.Logs(ctx, logs[0].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, newer)
}

func TestClientDisabledPlugin(t *testing.T) {
	srv, _ := newServer(t, scheduler.NewManual())
	c := New(srv.URL)
	ctx := context.Background()

	plugin, err := c.SetPluginEnabled(ctx, 2, false)
	require.NoError(t, err)
	assert.False(t, plugin.Enabled)

	res, err := c.StartRun(ctx, 2, "")
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Equal(t, "run denied: plugin is disabled", res.Reason)

	_, err = c.SetPluginEnabled(ctx, 2, true)
	require.NoError(t, err)
	res, err = c.StartRun(ctx, 2, "")
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.True(t, res.Run.Scope.IsGlobal())
}

func TestClientAPIError(t *testing.T) {
	srv, _ := newServer(t, scheduler.NewManual())
	c := New(srv.URL)

	_, err := c.SetPluginEnabled(context.Background(), 99, true)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)
}

func TestClientEntries(t *testing.T) {
	srv, svc := newServer(t, scheduler.NewManual())
	c := New(srv.URL)
	ctx := context.Background()

	require.NoError(t, svc.CreateEntry(ctx, &domain.Entry{Name: "log.mcap", Path: "/data/log.mcap", Platform: "Platform A", Size: 10}))
	require.NoError(t, svc.CreateEntry(ctx, &domain.Entry{Name: "drive.bag", Path: "/data/drive.bag", Platform: "Platform B", Size: 20}))

	entries, err := c.ListEntries(ctx, "drive", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "drive.bag", entries[0].Name)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8080", want: "ws://localhost:8080/v1/stream"},
		{in: "https://bagdesk.local/", want: "wss://bagdesk.local/v1/stream"},
		{in: "ws://127.0.0.1:1", want: "ws://127.0.0.1:1/v1/stream"},
		{in: "ftp://nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := StreamURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamStartRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := scheduler.NewLoop()
	go loop.Run(ctx)

	srv, _ := newServer(t, loop)
	addr, err := StreamURL(srv.URL)
	require.NoError(t, err)

	stream, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Read()
	require.NoError(t, err)
	snapshot, ok := first.(*protocol.SnapshotMessage)
	require.True(t, ok, "first message is the snapshot, got %T", first)
	assert.Len(t, snapshot.Plugins, 3)

	require.NoError(t, stream.SendHello("client-test"))
	requestID, err := stream.SendStartRun(3, "")
	require.NoError(t, err)

	var acked, started, finished bool
	deadline := time.Now().Add(5 * time.Second)
	for !(acked && started && finished) {
		require.True(t, time.Now().Before(deadline), "timed out waiting for stream messages")
		msg, err := stream.Read()
		require.NoError(t, err)
		switch m := msg.(type) {
		case *protocol.HelloAckMessage:
			assert.NotEmpty(t, m.ConnectionID)
			acked = true
		case *protocol.StartResultMessage:
			assert.Equal(t, requestID, m.RequestID)
			assert.True(t, m.Started)
			started = true
		case *protocol.LogMessage:
			assert.Equal(t, `Plugin "Index Database" on "global" finished.`, m.Entry.Message)
			finished = true
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"mystery","ts":1}`))
	require.NoError(t, err)
	base, ok := msg.(*protocol.BaseMessage)
	require.True(t, ok)
	assert.Equal(t, "mystery", base.Type)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
