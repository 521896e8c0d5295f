// Package tracker implements the run tracker: it starts plugin runs, advances
// their progress on a fixed cadence and finalizes them into the session log.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/scheduler"
)

var (
	// ErrUnknownPlugin is returned when the plugin id is not in the catalog.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrDuplicateRun is returned when a run for the same plugin and scope is active.
	ErrDuplicateRun = errors.New("run already active for plugin and scope")
	// ErrRunDenied is returned when the start gate refuses the run.
	ErrRunDenied = errors.New("run denied")
)

// runNamespace seeds the name-based run ids.
var runNamespace = uuid.MustParse("6f1c2a7e-4b0d-5c3e-9a8f-2d7e1b4c6a90")

const (
	// DefaultTickInterval is the period between two progress steps.
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultStep is the progress added per tick, in percent.
	DefaultStep = 5
	// DefaultFinalizeDelay is how long a completed run stays visible.
	DefaultFinalizeDelay = 500 * time.Millisecond
)

// Catalog resolves plugin ids.
type Catalog interface {
	Lookup(id int) (domain.PluginDefinition, bool)
}

// LogSink receives the completion message of every run.
type LogSink interface {
	Append(kind domain.LogKind, message string) domain.LogEntry
}

// Gate decides whether a run may start. A nil Gate allows everything.
type Gate interface {
	Allow(ctx context.Context, plugin domain.PluginDefinition, scope domain.Scope) (bool, string, error)
}

// Options are the run timings.
type Options struct {
	TickInterval  time.Duration
	Step          int
	FinalizeDelay time.Duration
}

func (o Options) normalized() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.Step > 100 {
		o.Step = 100
	}
	if o.FinalizeDelay < 0 {
		o.FinalizeDelay = 0
	}
	return o
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithGate installs a start gate.
func WithGate(g Gate) Option {
	return func(t *Tracker) { t.gate = g }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides the clock used to derive run ids.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

type pairKey struct {
	pluginID int
	scope    domain.Scope
}

type activeRun struct {
	run        domain.Run
	pluginName string
	seq        uint64
}

// Tracker owns the set of active runs.
type Tracker struct {
	sched   scheduler.Scheduler
	catalog Catalog
	sink    LogSink
	gate    Gate
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	runs      map[string]*activeRun
	byPair    map[pairKey]string
	seq       uint64
	observers []func(domain.RunEvent)
}

// New creates a Tracker. Zero-valued options take their defaults and the step
// is clamped to 100.
func New(sched scheduler.Scheduler, catalog Catalog, sink LogSink, opts Options, options ...Option) *Tracker {
	t := &Tracker{
		sched:   sched,
		catalog: catalog,
		sink:    sink,
		opts:    opts.normalized(),
		logger:  zerolog.Nop(),
		now:     time.Now,
		runs:    make(map[string]*activeRun),
		byPair:  make(map[pairKey]string),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Options returns the effective timings.
func (t *Tracker) Options() Options {
	return t.opts
}

// Start creates a run for the plugin on the given scope and schedules its
// advancement. Unknown plugins, duplicate starts and gate refusals change nothing.
func (t *Tracker) Start(ctx context.Context, pluginID int, scope domain.Scope) (domain.Run, error) {
	def, ok := t.catalog.Lookup(pluginID)
	if !ok {
		return domain.Run{}, ErrUnknownPlugin
	}

	key := pairKey{pluginID: pluginID, scope: scope}
	if t.isActive(key) {
		return domain.Run{}, ErrDuplicateRun
	}

	if t.gate != nil {
		allowed, reason, err := t.gate.Allow(ctx, def, scope)
		if err != nil {
			return domain.Run{}, fmt.Errorf("failed to check start gate: %w", err)
		}
		if !allowed {
			if reason == "" {
				return domain.Run{}, ErrRunDenied
			}
			return domain.Run{}, fmt.Errorf("%w: %s", ErrRunDenied, reason)
		}
	}

	t.mu.Lock()
	if _, dup := t.byPair[key]; dup {
		t.mu.Unlock()
		return domain.Run{}, ErrDuplicateRun
	}
	runID := t.newRunIDLocked(pluginID, scope)
	t.seq++
	ar := &activeRun{
		run: domain.Run{
			RunID:    runID,
			PluginID: pluginID,
			Scope:    scope,
			Progress: 0,
			Phase:    domain.RunPhasePending,
		},
		pluginName: def.Name,
		seq:        t.seq,
	}
	t.runs[runID] = ar
	t.byPair[key] = runID
	snapshot := ar.run
	observers := t.observers
	t.mu.Unlock()

	t.logger.Debug().
		Str("run_id", runID).
		Int("plugin_id", pluginID).
		Str("scope", scope.Key()).
		Msg("run started")
	// The first tick is armed only after observers saw run_started.
	emit(observers, domain.RunEvent{Type: domain.RunEventStarted, Run: snapshot})

	t.mu.Lock()
	if _, ok := t.runs[runID]; ok {
		t.sched.Every(runID, t.opts.TickInterval, func() bool {
			return t.advance(runID)
		})
	}
	t.mu.Unlock()
	return snapshot, nil
}

// newRunIDLocked derives the id from plugin, scope and creation time. The
// timestamp is nudged forward on the rare collision with an active run.
func (t *Tracker) newRunIDLocked(pluginID int, scope domain.Scope) string {
	ts := t.now().UnixNano()
	for {
		name := fmt.Sprintf("%d|%s|%d", pluginID, scope.Key(), ts)
		id := "run_" + uuid.NewSHA1(runNamespace, []byte(name)).String()
		if _, taken := t.runs[id]; !taken {
			return id
		}
		ts++
	}
}

func (t *Tracker) isActive(key pairKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byPair[key]
	return ok
}

// advance is the periodic task of one run. It looks the run up by id on every
// call and stops itself when the run is gone or complete.
func (t *Tracker) advance(runID string) bool {
	t.mu.Lock()
	ar, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return false
	}

	ar.run.Progress += t.opts.Step
	if ar.run.Progress >= 100 {
		ar.run.Progress = 100
		ar.run.Phase = domain.RunPhaseComplete
	} else {
		ar.run.Phase = domain.RunPhaseAdvancing
	}
	snapshot := ar.run
	complete := snapshot.Phase == domain.RunPhaseComplete
	if complete {
		t.sched.After(finalizeKey(runID), t.opts.FinalizeDelay, func() {
			t.finalize(runID)
		})
	}
	observers := t.observers
	t.mu.Unlock()

	emit(observers, domain.RunEvent{Type: domain.RunEventProgress, Run: snapshot})
	if complete {
		emit(observers, domain.RunEvent{Type: domain.RunEventCompleted, Run: snapshot})
	}
	return !complete
}

func (t *Tracker) finalize(runID string) {
	t.mu.Lock()
	ar, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.runs, runID)
	delete(t.byPair, pairKey{pluginID: ar.run.PluginID, scope: ar.run.Scope})
	observers := t.observers
	t.mu.Unlock()

	t.sink.Append(domain.LogKindInfo, FinishedMessage(ar.pluginName, ar.run.Scope))
	t.logger.Info().
		Str("run_id", runID).
		Int("plugin_id", ar.run.PluginID).
		Str("scope", ar.run.Scope.Key()).
		Msg("run finished")
	emit(observers, domain.RunEvent{Type: domain.RunEventRemoved, Run: ar.run})
}

// FinishedMessage is the log line appended when a run is finalized.
func FinishedMessage(pluginName string, scope domain.Scope) string {
	return fmt.Sprintf("Plugin \"%s\" on \"%s\" finished.", pluginName, scope.Label())
}

func finalizeKey(runID string) string {
	return "finalize:" + runID
}

// Active returns a snapshot of the active runs in creation order.
func (t *Tracker) Active() []domain.Run {
	t.mu.Lock()
	list := make([]*activeRun, 0, len(t.runs))
	for _, ar := range t.runs {
		list = append(list, ar)
	}
	t.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]domain.Run, len(list))
	for i, ar := range list {
		out[i] = ar.run
	}
	return out
}

// Get returns the active run with the given id.
func (t *Tracker) Get(runID string) (domain.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ar, ok := t.runs[runID]
	if !ok {
		return domain.Run{}, false
	}
	return ar.run, true
}

// Find returns the active run for the plugin and scope.
func (t *Tracker) Find(pluginID int, scope domain.Scope) (domain.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	runID, ok := t.byPair[pairKey{pluginID: pluginID, scope: scope}]
	if !ok {
		return domain.Run{}, false
	}
	return t.runs[runID].run, true
}

// Count returns the number of active runs.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

// Reset drops every active run without logging. Scheduled ticks and
// finalizers are cancelled; any already in flight find the run gone.
func (t *Tracker) Reset() {
	t.mu.Lock()
	removed := make([]domain.Run, 0, len(t.runs))
	for runID, ar := range t.runs {
		t.sched.Cancel(runID)
		t.sched.Cancel(finalizeKey(runID))
		removed = append(removed, ar.run)
	}
	t.runs = make(map[string]*activeRun)
	t.byPair = make(map[pairKey]string)
	observers := t.observers
	t.mu.Unlock()

	if len(removed) > 0 {
		t.logger.Debug().Int("runs", len(removed)).Msg("tracker reset")
	}
	for _, run := range removed {
		emit(observers, domain.RunEvent{Type: domain.RunEventRemoved, Run: run})
	}
}

// Subscribe registers fn for run events. Events are delivered outside the
// tracker lock; fn must not block.
func (t *Tracker) Subscribe(fn func(domain.RunEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]func(domain.RunEvent), len(t.observers), len(t.observers)+1)
	copy(next, t.observers)
	t.observers = append(next, fn)
}

func emit(observers []func(domain.RunEvent), ev domain.RunEvent) {
	for _, fn := range observers {
		fn(ev)
	}
}
