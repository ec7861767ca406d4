package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/rowflow/bootstrap"
	"github.com/kbukum/rowflow/config"
	"github.com/kbukum/rowflow/database"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/kafka/testutil"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/source"
)

const (
	ordersCSV = `id,sku,qty
1, ABC-1 ,3
2,abc-2,1
3,,4
1,ABC-1,3
4,Xyz-9,2
5,abc-5,
`
	ordersSchema = `CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY, sku TEXT NOT NULL, qty INTEGER)`
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) *JobConfig {
	t.Helper()
	flush := operation.DeferredConfig{BatchSize: 2, ForceFlush: 20 * time.Millisecond}
	cfg := &JobConfig{
		Input: source.CSVConfig{Path: writeFile(t, "orders.csv", ordersCSV)},
		Transform: TransformConfig{
			Required:  []string{"id", "sku"},
			Lowercase: []string{"sku"},
		},
		Database: database.Config{
			DSN:          filepath.Join(t.TempDir(), "orders.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			MaxRetries:   1,
			LogLevel:     "silent",
		},
		Sink: SinkConfig{
			InsertConfig: database.InsertConfig{DeferredConfig: flush, Columns: []string{"id", "sku", "qty"}},
			Table:        "orders",
			Schema:       ordersSchema,
		},
	}
	cfg.Name = "orders-import"
	cfg.Version = "0.1.0"
	cfg.Engine.WorkerCount = 2
	cfg.Sink.Retry.MaxAttempts = 1
	return cfg
}

func newTestJob(t *testing.T, cfg *JobConfig, opts ...JobOption) (*Job, *bytes.Buffer) {
	t.Helper()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	var out bytes.Buffer
	opts = append([]JobOption{WithAppOptions(bootstrap.WithLogger(logger.NewNop()))}, opts...)
	job, err := NewJob(cfg, &out, opts...)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job, &out
}

func openResult(t *testing.T, cfg *JobConfig) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), cfg.Database, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJob_IgnoresConflicts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sink.IgnoreConflicts = true
	job, out := newTestJob(t, cfg)

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Input != 6 || res.Finished != 5 || res.Removed != 1 {
		t.Errorf("input/finished/removed = %d/%d/%d, want 6/5/1", res.Input, res.Finished, res.Removed)
	}
	if got := res.Counters["insert(orders)"]["inserted"]; got != 4 {
		t.Errorf("inserted = %d, want 4 with the repeated id skipped", got)
	}
	if got := res.Counters["reject"]["removed"]; got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}

	db := openResult(t, cfg)
	var sku string
	var qty sql.NullInt64
	if err := db.GormDB.Raw("SELECT sku, qty FROM orders WHERE id = ?", 1).Row().Scan(&sku, &qty); err != nil {
		t.Fatal(err)
	}
	if sku != "abc-1" || !qty.Valid || qty.Int64 != 3 {
		t.Errorf("row 1 = %q/%v, want trimmed and lowercased", sku, qty)
	}
	if !strings.Contains(out.String(), "Run orders-import: ✅ success") {
		t.Errorf("summary:\n%s", out.String())
	}
}

func TestJob_DedupAndPublish(t *testing.T) {
	mini := miniredis.RunT(t)
	writer := &testutil.Writer{}

	cfg := testConfig(t)
	cfg.Redis.Addr = mini.Addr()
	cfg.Dedup.Fields = []string{"id"}
	cfg.Dedup.DeferredConfig = cfg.Sink.DeferredConfig
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = []string{"127.0.0.1:1"}
	cfg.Publish.Topic = "orders.loaded"
	cfg.Publish.KeyField = "id"
	cfg.Publish.DeferredConfig = cfg.Sink.DeferredConfig

	job, out := newTestJob(t, cfg, WithKafkaWriter(writer))
	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Input != 6 || res.Finished != 4 || res.Removed != 2 {
		t.Errorf("input/finished/removed = %d/%d/%d, want 6/4/2", res.Input, res.Finished, res.Removed)
	}

	db := openResult(t, cfg)
	var count int64
	if err := db.GormDB.Table("orders").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("orders = %d, want 4", count)
	}
	var sku string
	var qty sql.NullInt64
	if err := db.GormDB.Raw("SELECT sku, qty FROM orders WHERE id = ?", 5).Row().Scan(&sku, &qty); err != nil {
		t.Fatal(err)
	}
	if sku != "abc-5" || qty.Valid {
		t.Errorf("row 5 = %q/%v, want NULL qty for an empty value", sku, qty)
	}

	msgs := writer.Messages()
	if len(msgs) != 4 {
		t.Fatalf("published %d messages, want 4", len(msgs))
	}
	for _, m := range msgs {
		var v map[string]any
		if err := json.Unmarshal(m.Value, &v); err != nil {
			t.Fatalf("message value: %v", err)
		}
		if string(m.Key) != v["id"] {
			t.Errorf("key %q does not match id %v", m.Key, v["id"])
		}
	}
	if !mini.Exists("rowflow:orders-import:1") {
		t.Errorf("dedup key not claimed, keys: %v", mini.Keys())
	}

	summary := out.String()
	for _, want := range []string{"Run orders-import: ✅ success", "input=6 finished=4 removed=2", "inserted=4", "duplicates=1", "published=4"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestJob_ConflictFailsRun(t *testing.T) {
	cfg := testConfig(t)

	seed := openResult(t, cfg)
	if err := seed.Exec(context.Background(), ordersSchema); err != nil {
		t.Fatal(err)
	}
	if err := seed.Exec(context.Background(), `INSERT INTO orders (id, sku, qty) VALUES (2, 'taken', 1)`); err != nil {
		t.Fatal(err)
	}
	_ = seed.Close()

	job, out := newTestJob(t, cfg)
	res, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the run to fail on a duplicate key")
	}
	if !errors.HasCode(err, errors.ErrCodeDatabaseError) {
		t.Errorf("err = %v, want DATABASE_ERROR", err)
	}
	if res == nil || res.Success {
		t.Errorf("result = %+v, want failed", res)
	}
	if !strings.Contains(out.String(), "❌ failed") {
		t.Errorf("summary does not report the failure:\n%s", out.String())
	}
}

func TestJob_StartFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = "50ms"
	cfg.Dedup.Fields = []string{"id"}

	job, _ := newTestJob(t, cfg)
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected an unreachable redis to fail startup")
	}
	if job.Engine() != nil {
		t.Error("engine built although startup failed")
	}
}

func TestJobConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*JobConfig)
		field  string
	}{
		{"missing table", func(c *JobConfig) { c.Sink.Table = "" }, "sink.table"},
		{"missing input", func(c *JobConfig) { c.Input.Path = "" }, "input.path"},
		{"missing dsn", func(c *JobConfig) { c.Database.DSN = "" }, "database"},
		{"dedup without redis addr", func(c *JobConfig) { c.Dedup.Fields = []string{"id"} }, "redis"},
		{"kafka without topic", func(c *JobConfig) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
		}, "publish.topic"},
		{"bad delimiter", func(c *JobConfig) { c.Input.Comma = ";;" }, "input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("err = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestJobConfig_Load(t *testing.T) {
	input := writeFile(t, "orders.csv", ordersCSV)
	path := writeFile(t, "rowflow.yaml", `
name: orders-import
environment: staging
input:
  path: `+input+`
  trim_space: true
transform:
  required: [id, sku]
  lowercase: [sku]
engine:
  worker_count: 3
database:
  dsn: ./orders.db
sink:
  table: orders
  batch_size: 250
  force_flush: 50ms
  ignore_conflicts: true
  retry:
    max_attempts: 5
redis:
  addr: localhost:6379
dedup:
  fields: [id]
  ttl: 1h
`)
	cfg, err := config.Load[JobConfig]("rowflow", config.WithConfigFile(path), config.WithEnvFile(filepath.Join(t.TempDir(), "none.env")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.WorkerCount != 3 || !cfg.Input.TrimSpace || cfg.Input.Path != input {
		t.Errorf("engine/input not decoded: %+v %+v", cfg.Engine, cfg.Input)
	}
	if cfg.Sink.BatchSize != 250 || cfg.Sink.ForceFlush != 50*time.Millisecond || !cfg.Sink.IgnoreConflicts {
		t.Errorf("sink not decoded: %+v", cfg.Sink)
	}
	if cfg.Sink.Retry.MaxAttempts != 5 {
		t.Errorf("retry attempts = %d, want 5", cfg.Sink.Retry.MaxAttempts)
	}
	if !cfg.Database.Enabled || cfg.Database.Driver != "sqlite" {
		t.Errorf("database defaults not applied: %+v", cfg.Database)
	}
	if !cfg.DedupEnabled() || !cfg.Redis.Enabled || cfg.Dedup.TTL != time.Hour || cfg.Dedup.Prefix != "rowflow:orders-import" {
		t.Errorf("dedup not configured: %+v", cfg.Dedup)
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka enabled without configuration")
	}
}

func TestTransforms(t *testing.T) {
	r := row.New(map[string]any{"id": " 7 ", "sku": "  AbC ", "note": "   ", "qty": 3})
	if err := trimValues(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.Get("id") != "7" || r.Get("sku") != "AbC" || r.Get("qty") != 3 {
		t.Errorf("trim: %v", r.Values())
	}
	if _, ok := r.Lookup("note"); ok {
		t.Error("blank value not dropped")
	}

	if !hasFields([]string{"id", "sku"})(r) {
		t.Error("complete row rejected")
	}
	if hasFields([]string{"id", "note"})(r) {
		t.Error("row missing note accepted")
	}

	_ = foldCase([]string{"sku"}, nil)(context.Background(), r)
	if r.Get("sku") != "abc" {
		t.Errorf("lowercase: %v", r.Get("sku"))
	}
	_ = foldCase(nil, []string{"sku", "qty"})(context.Background(), r)
	if r.Get("sku") != "ABC" || r.Get("qty") != 3 {
		t.Errorf("uppercase: %v", r.Values())
	}
}
