package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// CSVConfig configures a CSV source.
type CSVConfig struct {
	// Path of the file to read. Ignored by NewCSVReader.
	Path string `yaml:"path" mapstructure:"path"`
	// Comma is the field delimiter. Defaults to ",".
	Comma string `yaml:"comma" mapstructure:"comma"`
	// NoHeader treats the first record as data. Columns then names the
	// fields, falling back to col_0, col_1, ...
	NoHeader bool `yaml:"no_header" mapstructure:"no_header"`
	// Columns overrides the header names.
	Columns []string `yaml:"columns" mapstructure:"columns"`
	// TrimSpace trims leading and trailing space of every value.
	TrimSpace bool `yaml:"trim_space" mapstructure:"trim_space"`
	// LazyQuotes relaxes quote handling, see csv.Reader.
	LazyQuotes bool `yaml:"lazy_quotes" mapstructure:"lazy_quotes"`
}

// ApplyDefaults fills zero values.
func (c *CSVConfig) ApplyDefaults() {
	if c.Comma == "" {
		c.Comma = ","
	}
}

// Validate checks the configuration.
func (c *CSVConfig) Validate() error {
	if utf8.RuneCountInString(c.Comma) != 1 {
		return errors.InvalidConfig("comma", "must be a single character")
	}
	return nil
}

// CSV reads one row per record. Values are strings keyed by column name.
// Records with more fields than columns are an error; short records leave
// the missing columns unset.
type CSV struct {
	name string
	cfg  CSVConfig
	open func() (io.ReadCloser, error)
}

var _ engine.Source = (*CSV)(nil)

// NewCSV creates a source reading cfg.Path. The file is opened on each run.
func NewCSV(name string, cfg CSVConfig) *CSV {
	cfg.ApplyDefaults()
	return &CSV{name: name, cfg: cfg, open: func() (io.ReadCloser, error) {
		if cfg.Path == "" {
			return nil, errors.MissingField("path")
		}
		return os.Open(cfg.Path)
	}}
}

// NewCSVReader creates a source reading r. r can only be consumed once.
func NewCSVReader(name string, r io.Reader, cfg CSVConfig) *CSV {
	cfg.ApplyDefaults()
	return &CSV{name: name, cfg: cfg, open: func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}}
}

func (s *CSV) Name() string { return s.name }

func (s *CSV) Rows(_ context.Context) pipeline.Iterator[*row.Row] {
	return &csvIter{src: s}
}

type csvIter struct {
	src     *CSV
	rc      io.ReadCloser
	reader  *csv.Reader
	columns []string
	line    int
	done    bool
}

func (it *csvIter) Next(ctx context.Context) (*row.Row, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.reader == nil {
		if err := it.start(); err != nil {
			it.done = true
			return nil, false, err
		}
	}

	record, err := it.read()
	if err == io.EOF {
		it.done = true
		return nil, false, nil
	}
	if err != nil {
		it.done = true
		return nil, false, err
	}
	if it.columns == nil {
		it.columns = positional(len(record))
	}
	if len(record) > len(it.columns) {
		it.done = true
		return nil, false, fmt.Errorf("line %d: %d fields for %d columns", it.line, len(record), len(it.columns))
	}

	values := make(map[string]any, len(record))
	for i, v := range record {
		if it.src.cfg.TrimSpace {
			v = strings.TrimSpace(v)
		}
		values[it.columns[i]] = v
	}
	return row.New(values), true, nil
}

func (it *csvIter) start() error {
	if err := it.src.cfg.Validate(); err != nil {
		return err
	}
	rc, err := it.src.open()
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	it.rc = rc
	it.reader = csv.NewReader(rc)
	it.reader.Comma, _ = utf8.DecodeRuneInString(it.src.cfg.Comma)
	it.reader.LazyQuotes = it.src.cfg.LazyQuotes
	it.reader.FieldsPerRecord = -1

	if len(it.src.cfg.Columns) > 0 {
		it.columns = it.src.cfg.Columns
	}
	if it.src.cfg.NoHeader {
		return nil
	}
	header, err := it.read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if it.columns == nil {
		it.columns = make([]string, len(header))
		for i, h := range header {
			it.columns[i] = strings.TrimSpace(h)
		}
	}
	return nil
}

func (it *csvIter) read() ([]string, error) {
	it.line++
	return it.reader.Read()
}

func (it *csvIter) Close() error {
	it.done = true
	if it.rc == nil {
		return nil
	}
	rc := it.rc
	it.rc = nil
	return rc.Close()
}

func positional(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("col_%d", i)
	}
	return cols
}
