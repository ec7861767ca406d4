package source

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

func collect(t *testing.T, src engine.Source) ([]*row.Row, error) {
	t.Helper()
	it := src.Rows(context.Background())
	defer it.Close()
	var out []*row.Row
	for {
		r, ok, err := it.Next(context.Background())
		if err != nil || !ok {
			return out, err
		}
		out = append(out, r)
	}
}

func TestSlice_FreshRowsPerRun(t *testing.T) {
	src := NewSlice("s", map[string]any{"n": 1}, map[string]any{"n": 2})
	first, err := collect(t, src)
	if err != nil {
		t.Fatal(err)
	}
	first[0].Set("n", 99)
	first[1].Remove()

	second, err := collect(t, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 || second[0].Get("n") != 1 || !second[1].IsNormal() {
		t.Errorf("second run should not see changes of the first")
	}
	if src.Len() != 2 {
		t.Errorf("Len() = %d", src.Len())
	}
}

func TestCSV_OneRowPerRecord(t *testing.T) {
	data := "id,name\n1, alice \n2,bob\n3,\"carol, jr\"\n"
	src := NewCSVReader("people", strings.NewReader(data), CSVConfig{TrimSpace: true})

	rows, err := collect(t, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Get("id") != "1" || rows[0].Get("name") != "alice" {
		t.Errorf("unexpected first row %#v", rows[0])
	}
	if rows[2].Get("name") != "carol, jr" {
		t.Errorf("quoted field not preserved: %v", rows[2].Get("name"))
	}
}

func TestCSV_Options(t *testing.T) {
	tests := []struct {
		name string
		data string
		cfg  CSVConfig
		want map[string]any
	}{
		{"semicolon", "a;b\n1;2\n", CSVConfig{Comma: ";"}, map[string]any{"a": "1", "b": "2"}},
		{"no header", "1,2\n", CSVConfig{NoHeader: true}, map[string]any{"col_0": "1", "col_1": "2"}},
		{"named columns", "1,2\n", CSVConfig{NoHeader: true, Columns: []string{"x", "y"}}, map[string]any{"x": "1", "y": "2"}},
		{"columns override header", "a,b\n1,2\n", CSVConfig{Columns: []string{"x", "y"}}, map[string]any{"x": "1", "y": "2"}},
		{"short record", "a,b\n1\n", CSVConfig{}, map[string]any{"a": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := collect(t, NewCSVReader("t", strings.NewReader(tt.data), tt.cfg))
			if err != nil {
				t.Fatal(err)
			}
			if len(rows) != 1 {
				t.Fatalf("expected 1 row, got %d", len(rows))
			}
			got := rows[0].Values()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestCSV_Errors(t *testing.T) {
	if _, err := collect(t, NewCSVReader("t", strings.NewReader("a\n1,2\n"), CSVConfig{})); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected a line error for a long record, got %v", err)
	}
	if _, err := collect(t, NewCSVReader("t", strings.NewReader("a\n"), CSVConfig{Comma: ";;"})); !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := collect(t, NewCSV("t", CSVConfig{Path: filepath.Join(t.TempDir(), "missing.csv")})); err == nil {
		t.Error("expected an open error")
	}
	if _, err := collect(t, NewCSV("t", CSVConfig{})); !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected missing path error, got %v", err)
	}
}

func TestCSV_EmptyFile(t *testing.T) {
	rows, err := collect(t, NewCSVReader("t", strings.NewReader(""), CSVConfig{}))
	if err != nil || len(rows) != 0 {
		t.Errorf("expected no rows, got %d, %v", len(rows), err)
	}
}

func TestCSV_DrivesEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	var b strings.Builder
	b.WriteString("n\n")
	for i := range 50 {
		b.WriteString(strconv.Itoa(i) + "\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := engine.DefaultConfig()
	cfg.WorkerCount = 2
	noop := operation.NewFunc("noop", func(context.Context, *row.Row) error { return nil })
	e := engine.New("csv", cfg, NewCSV("in", CSVConfig{Path: path}), []operation.Operation{noop}, engine.WithLogger(logger.NewNop()))
	rows, err := pipeline.Collect(context.Background(), e.Evaluate())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 50 || rows[49].Get("n") != "49" {
		t.Errorf("expected 50 rows in order, got %d", len(rows))
	}
}

func TestHeartbeat(t *testing.T) {
	src := Heartbeat(NewSlice("s", map[string]any{}, map[string]any{}, map[string]any{}, map[string]any{}, map[string]any{}), 2)
	rows, err := collect(t, src)
	if err != nil {
		t.Fatal(err)
	}
	var beats []int
	for i, r := range rows {
		if r.IsHeartbeat() {
			beats = append(beats, i)
		}
	}
	if len(rows) != 7 || len(beats) != 2 || beats[0] != 2 || beats[1] != 5 {
		t.Errorf("unexpected heartbeat positions %v in %d rows", beats, len(rows))
	}
	if src.Name() != "s" {
		t.Errorf("name not forwarded: %s", src.Name())
	}
	if Heartbeat(src, 0) != src {
		t.Error("n <= 0 should return the source unchanged")
	}
}
