package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/rowflow/component"
	"github.com/kbukum/rowflow/config"
	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/logger"
)

type testConfig struct {
	config.ServiceConfig
}

type mockComponent struct {
	name     string
	events   *[]string
	startErr error
	stopErr  error
	health   component.Health
}

func (m *mockComponent) Name() string { return m.name }

func (m *mockComponent) Start(context.Context) error {
	m.record("start:" + m.name)
	return m.startErr
}

func (m *mockComponent) Stop(context.Context) error {
	m.record("stop:" + m.name)
	return m.stopErr
}

func (m *mockComponent) Health(context.Context) component.Health { return m.health }

func (m *mockComponent) Describe() component.Description {
	return component.Description{Name: m.name, Type: "mock", Details: "in-memory"}
}

func (m *mockComponent) record(e string) {
	if m.events != nil {
		*m.events = append(*m.events, e)
	}
}

func healthy(name string, events *[]string) *mockComponent {
	return &mockComponent{
		name:   name,
		events: events,
		health: component.Health{Name: name, Status: component.StatusHealthy},
	}
}

func newTestApp(t *testing.T, opts ...Option) (*App[*testConfig], *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "orders-job", Version: "1.2.0"}}
	opts = append([]Option{WithLogger(logger.NewNop()), WithOutput(&out)}, opts...)
	app, err := NewApp(cfg, opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app, &out
}

func TestNewApp(t *testing.T) {
	app, _ := newTestApp(t)
	if app.Name != "orders-job" || app.Version != "1.2.0" {
		t.Errorf("name/version = %q/%q", app.Name, app.Version)
	}
	if app.Components == nil || app.Logger == nil || app.Summary == nil {
		t.Fatal("expected registry, logger and summary")
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("defaults not applied: environment = %q", app.Cfg.Environment)
	}
	if app.gracefulTimeout != 15*time.Second {
		t.Errorf("gracefulTimeout = %v", app.gracefulTimeout)
	}
}

func TestNewAppValidation(t *testing.T) {
	if _, err := NewApp(&testConfig{}, WithLogger(logger.NewNop())); err == nil {
		t.Error("expected error for missing name")
	}
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "x", Environment: "moon"}}
	if _, err := NewApp(cfg, WithLogger(logger.NewNop())); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestNewAppWithOptions(t *testing.T) {
	app, _ := newTestApp(t, WithGracefulTimeout(30*time.Second))
	if app.gracefulTimeout != 30*time.Second {
		t.Errorf("gracefulTimeout = %v", app.gracefulTimeout)
	}
}

func TestRunTask_Lifecycle(t *testing.T) {
	app, out := newTestApp(t)
	var events []string
	if err := app.RegisterComponent(healthy("db", &events)); err != nil {
		t.Fatal(err)
	}
	if err := app.RegisterComponent(healthy("cache", &events)); err != nil {
		t.Fatal(err)
	}
	app.OnStart(func(context.Context) error { events = append(events, "onStart"); return nil })
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		if a != app {
			t.Error("configure received a different app")
		}
		events = append(events, "configure")
		return nil
	})
	app.OnReady(func(context.Context) error { events = append(events, "onReady"); return nil })
	app.OnStop(func(context.Context) error { events = append(events, "onStop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		events = append(events, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	want := []string{"start:db", "start:cache", "onStart", "configure", "onReady", "task", "onStop", "stop:cache", "stop:db"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
	if !strings.Contains(out.String(), "orders-job v1.2.0") {
		t.Errorf("summary not written:\n%s", out.String())
	}
}

func TestRunTask_TaskError(t *testing.T) {
	app, _ := newTestApp(t)
	var events []string
	_ = app.RegisterComponent(healthy("db", &events))

	boom := errors.New("boom")
	err := app.RunTask(context.Background(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if events[len(events)-1] != "stop:db" {
		t.Errorf("components not stopped after task error: %v", events)
	}
}

func TestRunTask_StartFailure(t *testing.T) {
	app, _ := newTestApp(t)
	var events []string
	_ = app.RegisterComponent(healthy("db", &events))
	broken := healthy("kafka", &events)
	broken.startErr = errors.New("no brokers")
	_ = app.RegisterComponent(broken)

	ran := false
	err := app.RunTask(context.Background(), func(context.Context) error { ran = true; return nil })
	if err == nil || !strings.Contains(err.Error(), "initialization failed") {
		t.Fatalf("err = %v", err)
	}
	if ran {
		t.Error("task ran after failed startup")
	}
	if events[len(events)-1] != "stop:db" {
		t.Errorf("started component not stopped: %v", events)
	}
}

func TestRunTask_ConfigureFailure(t *testing.T) {
	app, _ := newTestApp(t)
	app.OnConfigure(func(context.Context, *App[*testConfig]) error { return errors.New("bad input") })
	err := app.RunTask(context.Background(), func(context.Context) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "configuration failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunTask_StopError(t *testing.T) {
	app, _ := newTestApp(t)
	c := healthy("db", nil)
	c.stopErr = errors.New("close failed")
	_ = app.RegisterComponent(c)

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Error("expected stop error to surface when the task succeeded")
	}
}

func TestRunTask_ParentCancel(t *testing.T) {
	app, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	err := app.RunTask(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReadyCheck(t *testing.T) {
	app, _ := newTestApp(t)
	_ = app.RegisterComponent(healthy("db", nil))
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Errorf("ReadyCheck: %v", err)
	}

	_ = app.RegisterComponent(&mockComponent{
		name:   "redis",
		health: component.Health{Name: "redis", Status: component.StatusUnhealthy, Message: "refused"},
	})
	err := app.ReadyCheck(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis=unhealthy(refused)") {
		t.Errorf("ReadyCheck = %v", err)
	}
}

func TestSummary_Write(t *testing.T) {
	reg := component.NewRegistry().WithLogger(logger.NewNop())
	_ = reg.Register(healthy("db", nil))

	s := NewSummary("orders-job", "1.2.0")
	s.SetStartupDuration(250 * time.Millisecond)
	s.SetTaskDuration(2 * time.Second)
	s.TrackRun("orders", &engine.Result{
		Success:  true,
		Input:    10,
		Finished: 7,
		Removed:  3,
		Duration: time.Second,
		Counters: map[string]map[string]int64{
			"insert(orders)": {"inserted": 7, "flushes": 2},
			"dedup(sku)":     {"duplicates": 3},
		},
	})
	s.TrackRun("failed", &engine.Result{Errors: []error{errors.New("x")}})
	s.TrackRun("ignored", nil)

	var buf bytes.Buffer
	s.Write(&buf, reg)
	out := buf.String()

	for _, want := range []string{
		"orders-job v1.2.0 (startup 0.25s, task 2.00s)",
		"db [mock]: in-memory",
		"db: healthy",
		"Run orders: ✅ success",
		"input=10 finished=7 removed=3 errors=0",
		"dedup(sku): duplicates=3",
		"insert(orders): flushes=2 inserted=7",
		"Run failed: ❌ failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if len(s.Runs()) != 2 {
		t.Errorf("runs = %d, want 2", len(s.Runs()))
	}
}

func TestSummary_NoRuns(t *testing.T) {
	var buf bytes.Buffer
	NewSummary("job", "0.1.0").Write(&buf, nil)
	if !strings.Contains(buf.String(), "No runs recorded") {
		t.Errorf("output = %q", buf.String())
	}
}
