package database

import (
	"context"
	"database/sql"

	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// QuerySource reads the result of a SQL query as rows. The cursor holds a
// connection while the run is in progress, so rows are enqueued one at a
// time.
type QuerySource struct {
	name  string
	db    *DB
	query string
	args  []any
}

var (
	_ engine.Source     = (*QuerySource)(nil)
	_ engine.Unbuffered = (*QuerySource)(nil)
)

// NewQuery creates a source running query with args on each run.
func NewQuery(name string, db *DB, query string, args ...any) *QuerySource {
	return &QuerySource{name: name, db: db, query: query, args: args}
}

func (s *QuerySource) Name() string { return s.name }

func (s *QuerySource) NoBuffer() bool { return true }

func (s *QuerySource) Rows(_ context.Context) pipeline.Iterator[*row.Row] {
	return &queryIter{src: s}
}

type queryIter struct {
	src  *QuerySource
	rows *sql.Rows
	done bool
}

func (it *queryIter) Next(ctx context.Context) (*row.Row, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if it.rows == nil {
		rows, err := it.src.db.WithContext(ctx).Raw(it.src.query, it.src.args...).Rows()
		if err != nil {
			it.done = true
			return nil, false, FromDatabase(err, it.src.name)
		}
		it.rows = rows
	}
	if !it.rows.Next() {
		it.done = true
		if err := it.rows.Err(); err != nil {
			return nil, false, FromDatabase(err, it.src.name)
		}
		return nil, false, nil
	}

	values := map[string]any{}
	if err := it.src.db.GormDB.ScanRows(it.rows, &values); err != nil {
		it.done = true
		return nil, false, FromDatabase(err, it.src.name)
	}
	return row.New(values), true, nil
}

func (it *queryIter) Close() error {
	it.done = true
	if it.rows == nil {
		return nil
	}
	rows := it.rows
	it.rows = nil
	return rows.Close()
}
