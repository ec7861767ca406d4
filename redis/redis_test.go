package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/rowflow/component"
	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/security"
	"github.com/kbukum/rowflow/security/tlstest"
	"github.com/kbukum/rowflow/testutil"
)

// newTestClient creates a Client backed by miniredis.
func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client, err := New(Config{Enabled: true, Addr: mini.Addr()}, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mini
}

func dedupConfig(batch int, fields ...string) DedupConfig {
	return DedupConfig{
		DeferredConfig: operation.DeferredConfig{BatchSize: batch, ForceFlush: 20 * time.Millisecond},
		Fields:         fields,
		Prefix:         "test",
	}
}

func ordersWithIDs(ids ...string) []*row.Row {
	rows := make([]*row.Row, len(ids))
	for i, id := range ids {
		rows[i] = row.New(map[string]any{"order_id": id, "n": i})
	}
	return rows
}

func runDedup(t *testing.T, d *Dedup, rows []*row.Row) (*engine.Result, *testutil.Recorder) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.WorkerCount = 2
	cfg.MainLoopDelay = time.Millisecond
	after := testutil.NewRecorder("after")
	res, err := engine.New("dedup", cfg, engine.FromRows("orders", rows...), []operation.Operation{d, after},
		engine.WithLogger(logger.NewNop())).Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return res, after
}

func TestDedup_RemovesDuplicatesWithinRun(t *testing.T) {
	client, mini := newTestClient(t)
	d := NewDedup(client, dedupConfig(3, "order_id"))

	res, after := runDedup(t, d, ordersWithIDs("a", "b", "a", "c", "b", "a", "d"))

	if got := len(after.Seen()); got != 4 {
		t.Errorf("expected 4 unique rows past dedup, got %d", got)
	}
	if res.Finished != 4 || res.Removed != 3 {
		t.Errorf("expected finished=4 removed=3, got %d/%d", res.Finished, res.Removed)
	}
	counters := res.Counters[d.Name()]
	if counters["unique"] != 4 || counters["duplicates"] != 3 {
		t.Errorf("unexpected counters %v", counters)
	}
	if !mini.Exists("test:a") || mini.TTL("test:a") != DefaultDedupTTL {
		t.Errorf("expected test:a claimed with default ttl, ttl=%v", mini.TTL("test:a"))
	}
}

func TestDedup_RemembersEarlierRuns(t *testing.T) {
	client, mini := newTestClient(t)
	cfg := dedupConfig(2, "order_id")
	cfg.TTL = time.Minute

	runDedup(t, NewDedup(client, cfg), ordersWithIDs("a", "b"))
	_, after := runDedup(t, NewDedup(client, cfg), ordersWithIDs("a", "c"))
	if got := len(after.Seen()); got != 1 || after.Seen()[0].String("order_id") != "c" {
		t.Errorf("expected only c to pass the second run, got %d rows", got)
	}

	mini.FastForward(2 * time.Minute)
	_, after = runDedup(t, NewDedup(client, cfg), ordersWithIDs("a"))
	if got := len(after.Seen()); got != 1 {
		t.Errorf("expected a to pass once its key expired, got %d rows", got)
	}
}

func TestDedup_CompositeKey(t *testing.T) {
	client, _ := newTestClient(t)
	d := NewDedup(client, dedupConfig(10, "sku", "region"))

	r := row.New(map[string]any{"sku": "x1", "region": "eu"})
	if got := d.Key(r); got != "test:x1:eu" {
		t.Errorf("Key() = %q", got)
	}
	if got := d.Key(row.New(map[string]any{"sku": 7})); got != "test:7:" {
		t.Errorf("Key() with missing field = %q", got)
	}
}

func TestDedup_RedisDownFailsRun(t *testing.T) {
	client, mini := newTestClient(t)
	mini.Close()

	cfg := engine.DefaultConfig()
	cfg.MainLoopDelay = time.Millisecond
	d := NewDedup(client, dedupConfig(2, "order_id"))
	_, err := engine.New("dedup", cfg, engine.FromRows("orders", ordersWithIDs("a", "b")...), []operation.Operation{d},
		engine.WithLogger(logger.NewNop())).Execute(context.Background())
	if !errors.HasCode(err, errors.ErrCodeExternalService) {
		t.Errorf("expected an external service error, got %v", err)
	}
}

func TestDedupConfig_Validate(t *testing.T) {
	cfg := dedupConfig(0)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing fields to fail")
	}
	cfg.Fields = []string{"id"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := NewDedup(nil, cfg).Prepare(context.Background()); !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected a validation error without a client, got %v", err)
	}
}

func TestClient_SetNXMany(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if err := client.Set(ctx, "k2", "taken", 0); err != nil {
		t.Fatal(err)
	}
	claimed, err := client.SetNXMany(ctx, []string{"k1", "k2", "k3"}, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed[0] || claimed[1] || !claimed[2] {
		t.Errorf("unexpected claims %v", claimed)
	}
	if claimed, err := client.SetNXMany(ctx, nil, 1, time.Minute); err != nil || claimed != nil {
		t.Errorf("expected no-op for no keys, got %v %v", claimed, err)
	}
}

func TestClient_GetMissing(t *testing.T) {
	client, _ := newTestClient(t)
	v, ok, err := client.Get(context.Background(), "nope")
	if err != nil || ok || v != "" {
		t.Errorf("Get(missing) = %q %v %v", v, ok, err)
	}
}

func TestNew_Disabled(t *testing.T) {
	if _, err := New(Config{Addr: "localhost:6379"}, logger.NewNop()); err == nil {
		t.Error("expected a disabled config to be rejected")
	}
}

func TestNew_TLS(t *testing.T) {
	certs := tlstest.New(t)
	mini, err := miniredis.RunTLS(certs.ServerConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mini.Close)

	cfg := Config{Enabled: true, Addr: mini.Addr()}
	cfg.TLS = security.TLSConfig{CAFile: certs.CAFile, ServerName: tlstest.Host}
	client, err := New(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping over TLS: %v", err)
	}

	cfg.TLS.CAFile = tlstest.BadPEM(t, "bad.pem")
	if _, err := New(cfg, logger.NewNop()); !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("err = %v, want a validation error for a bad CA", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "valid", cfg: Config{Enabled: true, Addr: "localhost:6379"}},
		{name: "missing addr", cfg: Config{Enabled: true}, wantErr: true},
		{name: "bad timeout", cfg: Config{Enabled: true, Addr: "x:1", DialTimeout: "soon"}, wantErr: true},
		{name: "negative db", cfg: Config{Enabled: true, Addr: "x:1", DB: -1}, wantErr: true},
		{name: "cert without key", cfg: Config{Enabled: true, Addr: "x:1", TLS: security.TLSConfig{CertFile: "c.pem"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	mini := miniredis.RunT(t)
	c := NewComponent(Config{Enabled: true, Addr: mini.Addr()}, logger.NewNop())
	testutil.T(t).Setup(c)

	if c.Client() == nil {
		t.Fatal("expected a client after start")
	}
	if h := c.Health(context.Background()); h.Status != component.StatusHealthy || !strings.HasPrefix(h.Message, "ping ") {
		t.Errorf("expected healthy with ping latency, got %s: %s", h.Status, h.Message)
	}
	if d := c.Describe(); d.Type != "redis" || !strings.Contains(d.Details, mini.Addr()) || !strings.HasSuffix(d.Details, "tls=off") {
		t.Errorf("unexpected description %+v", d)
	}

	mini.Close()
	if h := c.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy after the server stopped, got %s", h.Status)
	}
}
