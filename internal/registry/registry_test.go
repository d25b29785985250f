package registry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// stubPlugin is a configurable module for lifecycle tests. The zero
// value is a well-behaved optional module.
type stubPlugin struct {
	info     plugin.PluginInfo
	initErr  error
	startErr error
	stopErr  error

	panicInit  bool
	panicStart bool
	panicStop  bool

	stopDelay time.Duration
	stopLog   *stopRecorder
	stopCount *int32
}

// stopRecorder collects shutdown order across modules. Safe for
// concurrent appends.
type stopRecorder struct {
	mu    sync.Mutex
	names []string
}

func (s *stopRecorder) add(name string) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
}

func (s *stubPlugin) Info() plugin.PluginInfo { return s.info }

func (s *stubPlugin) Init(ctx context.Context, deps plugin.Dependencies) error {
	if s.panicInit {
		panic("init blew a fuse")
	}
	return s.initErr
}

func (s *stubPlugin) Start(ctx context.Context) error {
	if s.panicStart {
		panic("start blew a fuse")
	}
	return s.startErr
}

func (s *stubPlugin) Stop(ctx context.Context) error {
	if s.panicStop {
		panic("stop blew a fuse")
	}
	if s.stopDelay > 0 {
		select {
		case <-time.After(s.stopDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.stopLog != nil {
		s.stopLog.add(s.info.Name)
	}
	if s.stopCount != nil {
		atomic.AddInt32(s.stopCount, 1)
	}
	return s.stopErr
}

// mod builds an optional module at the current API version.
func mod(name string, deps ...string) *stubPlugin {
	return &stubPlugin{info: plugin.PluginInfo{
		Name:         name,
		Version:      "1.0.0",
		Dependencies: deps,
		APIVersion:   plugin.APIVersionCurrent,
	}}
}

// required marks a module as mandatory for server startup.
func required(p *stubPlugin) *stubPlugin {
	p.info.Required = true
	return p
}

// routedPlugin exposes HTTP routes like the telemetry module does.
type routedPlugin struct {
	stubPlugin
	routes []plugin.Route
}

func (r *routedPlugin) Routes() []plugin.Route { return r.routes }

// listenerPlugin declares bus subscriptions, mirroring the streamer
// module's interest in telemetry events.
type listenerPlugin struct {
	stubPlugin
	topics []string
}

func (l *listenerPlugin) Subscriptions() []plugin.Subscription {
	subs := make([]plugin.Subscription, 0, len(l.topics))
	for _, topic := range l.topics {
		subs = append(subs, plugin.Subscription{
			Topic:   topic,
			Handler: func(ctx context.Context, event plugin.Event) {},
		})
	}
	return subs
}

// recordingBus remembers which topics were subscribed during InitAll.
type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(ctx context.Context, event plugin.Event) error { return nil }
func (b *recordingBus) PublishAsync(ctx context.Context, event plugin.Event)  {}
func (b *recordingBus) Subscribe(topic string, handler plugin.EventHandler) func() {
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	b.mu.Unlock()
	return func() {}
}
func (b *recordingBus) SubscribeAll(handler plugin.EventHandler) func() { return func() {} }

func newRegistry(t *testing.T, plugins ...plugin.Plugin) *Registry {
	t.Helper()
	r := New(zap.NewNop())
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p.Info().Name, err)
		}
	}
	return r
}

func nopDeps(name string) plugin.Dependencies {
	return plugin.Dependencies{Logger: zap.NewNop()}
}

func mustValidateAndInit(t *testing.T, r *Registry) {
	t.Helper()
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.InitAll(context.Background(), nopDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	r := newRegistry(t, mod("telemetry"))
	if err := r.Register(mod("telemetry")); err == nil {
		t.Fatal("expected error registering telemetry twice")
	}
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	r := newRegistry(t)
	if err := r.Register(mod("")); err == nil {
		t.Fatal("expected error for nameless module")
	}
}

func TestValidate_StartOrderFollowsDependencies(t *testing.T) {
	// streamer and kpi both consume the telemetry module's data.
	r := newRegistry(t,
		mod("streamer", "telemetry"),
		mod("telemetry"),
		mod("kpi", "telemetry"),
	)
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	pos := make(map[string]int)
	for i, p := range r.All() {
		pos[p.Info().Name] = i
	}
	if pos["telemetry"] > pos["streamer"] || pos["telemetry"] > pos["kpi"] {
		t.Fatalf("telemetry must start before its dependents, got order %v", pos)
	}
}

func TestValidate_DetectsCycle(t *testing.T) {
	r := newRegistry(t,
		mod("kpi", "columns"),
		mod("columns", "kpi"),
	)
	err := r.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestValidate_MissingDependency(t *testing.T) {
	t.Run("required module fails hard", func(t *testing.T) {
		r := newRegistry(t, required(mod("telemetry", "store")))
		if err := r.Validate(); err == nil {
			t.Fatal("expected error for required module with missing dependency")
		}
	})

	t.Run("optional module is disabled", func(t *testing.T) {
		r := newRegistry(t, mod("mqtt", "broker-bridge"))
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !r.IsDisabled("mqtt") {
			t.Fatal("mqtt should be disabled, broker-bridge is not registered")
		}
	})
}

func TestValidate_CascadeDisable(t *testing.T) {
	// notifier depends on mqtt which depends on a module that is not
	// registered. Both go down, telemetry stays up.
	r := newRegistry(t,
		mod("telemetry"),
		mod("mqtt", "broker-bridge"),
		mod("notifier", "mqtt"),
	)
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsDisabled("mqtt") || !r.IsDisabled("notifier") {
		t.Fatal("expected mqtt and notifier disabled")
	}
	if r.IsDisabled("telemetry") {
		t.Fatal("telemetry should be unaffected")
	}
	if got := len(r.All()); got != 1 {
		t.Fatalf("expected 1 active module, got %d", got)
	}
}

func TestValidate_APIVersion(t *testing.T) {
	t.Run("stale required module aborts", func(t *testing.T) {
		stale := required(mod("telemetry"))
		stale.info.APIVersion = 0
		r := newRegistry(t, stale)
		if err := r.Validate(); err == nil {
			t.Fatal("expected error for required module below APIVersionMin")
		}
	})

	t.Run("future optional module is disabled", func(t *testing.T) {
		future := mod("kpi")
		future.info.APIVersion = 999
		r := newRegistry(t, future, mod("telemetry"))
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !r.IsDisabled("kpi") {
			t.Fatal("kpi targets an unsupported API version, should be disabled")
		}
	})
}

func TestInitAll(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		r := newRegistry(t, mod("telemetry"), mod("kpi", "telemetry"))
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if err := r.InitAll(context.Background(), nopDeps); err != nil {
			t.Fatalf("InitAll: %v", err)
		}
	})

	t.Run("required init failure aborts", func(t *testing.T) {
		broken := required(mod("telemetry"))
		broken.initErr = errors.New("schema migration failed")
		r := newRegistry(t, broken)
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if err := r.InitAll(context.Background(), nopDeps); err == nil {
			t.Fatal("expected InitAll to surface the required module's failure")
		}
	})

	t.Run("optional init failure disables", func(t *testing.T) {
		flaky := mod("mqtt")
		flaky.initErr = errors.New("broker unreachable")
		r := newRegistry(t, flaky, mod("telemetry"))
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if err := r.InitAll(context.Background(), nopDeps); err != nil {
			t.Fatalf("InitAll: %v", err)
		}
		if !r.IsDisabled("mqtt") {
			t.Fatal("mqtt failed Init and should be disabled")
		}
	})
}

func TestInitAll_WiresDeclaredSubscriptions(t *testing.T) {
	streamer := &listenerPlugin{
		stubPlugin: *mod("streamer"),
		topics:     []string{"telemetry.batch.received", "telemetry.store.cleared"},
	}
	bus := &recordingBus{}

	r := newRegistry(t, streamer)
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	err := r.InitAll(context.Background(), func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}
	})
	if err != nil {
		t.Fatalf("InitAll: %v", err)
	}

	if len(bus.topics) != 2 {
		t.Fatalf("expected 2 subscriptions wired, got %v", bus.topics)
	}
	want := map[string]bool{"telemetry.batch.received": true, "telemetry.store.cleared": true}
	for _, topic := range bus.topics {
		if !want[topic] {
			t.Fatalf("unexpected subscription topic %q", topic)
		}
	}
}

func TestStartAll(t *testing.T) {
	t.Run("required start failure aborts", func(t *testing.T) {
		dead := required(mod("telemetry"))
		dead.startErr = errors.New("listen tcp :1883: address in use")
		r := newRegistry(t, dead)
		mustValidateAndInit(t, r)
		if err := r.StartAll(context.Background()); err == nil {
			t.Fatal("expected StartAll to fail for required module")
		}
	})

	t.Run("optional start failure disables", func(t *testing.T) {
		flaky := mod("mqtt")
		flaky.startErr = errors.New("broker handshake timeout")
		r := newRegistry(t, flaky, mod("telemetry"))
		mustValidateAndInit(t, r)
		if err := r.StartAll(context.Background()); err != nil {
			t.Fatalf("StartAll: %v", err)
		}
		if !r.IsDisabled("mqtt") {
			t.Fatal("mqtt failed Start and should be disabled")
		}
	})
}

func TestStopAll_ReverseOrder(t *testing.T) {
	cases := []struct {
		name string
		deps map[string][]string // module name to its dependencies
	}{
		{
			name: "chain",
			deps: map[string][]string{
				"telemetry": nil,
				"kpi":       {"telemetry"},
				"streamer":  {"kpi"},
			},
		},
		{
			name: "fan out",
			deps: map[string][]string{
				"telemetry": nil,
				"kpi":       {"telemetry"},
				"streamer":  {"telemetry"},
				"notifier":  {"kpi", "streamer"},
			},
		},
		{
			name: "independent",
			deps: map[string][]string{
				"telemetry": nil,
				"settings":  nil,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &stopRecorder{}
			r := New(zap.NewNop())
			for name, deps := range tc.deps {
				p := mod(name, deps...)
				p.stopLog = rec
				if err := r.Register(p); err != nil {
					t.Fatalf("Register(%s): %v", name, err)
				}
			}
			mustValidateAndInit(t, r)
			if err := r.StartAll(context.Background()); err != nil {
				t.Fatalf("StartAll: %v", err)
			}
			r.StopAll(context.Background())

			if len(rec.names) != len(tc.deps) {
				t.Fatalf("stopped %d of %d modules: %v", len(rec.names), len(tc.deps), rec.names)
			}
			stoppedAt := make(map[string]int, len(rec.names))
			for i, name := range rec.names {
				stoppedAt[name] = i
			}
			for name, deps := range tc.deps {
				for _, dep := range deps {
					if stoppedAt[name] > stoppedAt[dep] {
						t.Errorf("%s stopped after its dependency %s: %v", name, dep, rec.names)
					}
				}
			}
		})
	}
}

func TestStopAll_ErrorDoesNotBlockOthers(t *testing.T) {
	rec := &stopRecorder{}
	stubborn := mod("mqtt")
	stubborn.stopErr = errors.New("broker connection already closed")
	clean := mod("telemetry")
	clean.stopLog = rec

	r := newRegistry(t, stubborn, clean)
	mustValidateAndInit(t, r)
	r.StopAll(context.Background())

	if len(rec.names) != 1 || rec.names[0] != "telemetry" {
		t.Fatalf("telemetry should stop despite mqtt's error, got %v", rec.names)
	}
}

func TestStopAll_HonorsContextDeadline(t *testing.T) {
	slow := mod("backup")
	slow.stopDelay = 5 * time.Second

	r := newRegistry(t, slow)
	mustValidateAndInit(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	r.StopAll(ctx)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("StopAll blocked %v on a slow module despite the deadline", elapsed)
	}
}

func TestStopAll_SkipsDisabled(t *testing.T) {
	rec := &stopRecorder{}
	broken := mod("mqtt")
	broken.initErr = errors.New("broker unreachable")
	broken.stopLog = rec
	healthy := mod("telemetry")
	healthy.stopLog = rec

	r := newRegistry(t, broken, healthy)
	mustValidateAndInit(t, r)
	r.StopAll(context.Background())

	for _, name := range rec.names {
		if name == "mqtt" {
			t.Fatal("disabled module must not receive Stop")
		}
	}
	if len(rec.names) != 1 {
		t.Fatalf("expected only telemetry stopped, got %v", rec.names)
	}
}

func TestStopAll_Concurrent(t *testing.T) {
	var count int32
	p := mod("telemetry")
	p.stopCount = &count

	r := newRegistry(t, p)
	mustValidateAndInit(t, r)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.StopAll(context.Background())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&count); got != 3 {
		t.Fatalf("expected 3 Stop calls, got %d", got)
	}
}

func TestInitAll_PanicRecovery(t *testing.T) {
	t.Run("optional module is disabled", func(t *testing.T) {
		crashy := mod("mqtt")
		crashy.panicInit = true
		r := newRegistry(t, crashy, mod("telemetry"))
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if err := r.InitAll(context.Background(), nopDeps); err != nil {
			t.Fatalf("InitAll should absorb an optional module's panic, got %v", err)
		}
		if !r.IsDisabled("mqtt") {
			t.Fatal("panicking optional module should be disabled")
		}
	})

	t.Run("required module returns error", func(t *testing.T) {
		crashy := required(mod("telemetry"))
		crashy.panicInit = true
		r := newRegistry(t, crashy)
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		err := r.InitAll(context.Background(), nopDeps)
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("expected panic converted to error, got %v", err)
		}
	})
}

func TestStartAll_PanicRecovery(t *testing.T) {
	t.Run("optional module is disabled", func(t *testing.T) {
		crashy := mod("mqtt")
		crashy.panicStart = true
		r := newRegistry(t, crashy, mod("telemetry"))
		mustValidateAndInit(t, r)
		if err := r.StartAll(context.Background()); err != nil {
			t.Fatalf("StartAll should absorb an optional module's panic, got %v", err)
		}
		if !r.IsDisabled("mqtt") {
			t.Fatal("panicking optional module should be disabled")
		}
	})

	t.Run("required module returns error", func(t *testing.T) {
		crashy := required(mod("telemetry"))
		crashy.panicStart = true
		r := newRegistry(t, crashy)
		mustValidateAndInit(t, r)
		err := r.StartAll(context.Background())
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("expected panic converted to error, got %v", err)
		}
	})
}

func TestStopAll_PanicRecovery(t *testing.T) {
	rec := &stopRecorder{}
	crashy := mod("streamer", "telemetry")
	crashy.panicStop = true
	clean := mod("telemetry")
	clean.stopLog = rec

	r := newRegistry(t, crashy, clean)
	mustValidateAndInit(t, r)
	r.StopAll(context.Background()) // must not propagate the panic

	if len(rec.names) != 1 || rec.names[0] != "telemetry" {
		t.Fatalf("telemetry should stop despite streamer's panic, got %v", rec.names)
	}
}

func TestGet(t *testing.T) {
	r := newRegistry(t, mod("telemetry"), mod("mqtt", "broker-bridge"))
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, ok := r.Get("telemetry"); !ok {
		t.Fatal("telemetry should resolve")
	}
	if _, ok := r.Get("mqtt"); ok {
		t.Fatal("disabled module must not resolve")
	}
	if _, ok := r.Get("columns"); ok {
		t.Fatal("unregistered module must not resolve")
	}
}

func TestAllRoutes(t *testing.T) {
	devices := &routedPlugin{
		stubPlugin: *mod("telemetry"),
		routes: []plugin.Route{
			{Method: http.MethodGet, Path: "/devices", Handler: func(w http.ResponseWriter, r *http.Request) {}},
			{Method: http.MethodPost, Path: "/", Handler: func(w http.ResponseWriter, r *http.Request) {}},
		},
	}
	r := newRegistry(t, devices, mod("settings"))
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	routes := r.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("only telemetry exposes routes, got %d entries", len(routes))
	}
	if got := len(routes["telemetry"]); got != 2 {
		t.Fatalf("expected 2 telemetry routes, got %d", got)
	}
}

func TestResolveByRole(t *testing.T) {
	ingest := mod("telemetry")
	ingest.info.Roles = []string{"ingest"}
	notify := mod("notifier")
	notify.info.Roles = []string{"notification"}

	r := newRegistry(t, ingest, notify, mod("settings"))
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	got := r.ResolveByRole("ingest")
	if len(got) != 1 || got[0].Info().Name != "telemetry" {
		t.Fatalf("expected telemetry for role ingest, got %v", got)
	}
	if extra := r.ResolveByRole("reporting"); len(extra) != 0 {
		t.Fatalf("no module fills role reporting, got %v", extra)
	}
}
