package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
)

// InsertConfig configures a BatchInsert.
type InsertConfig struct {
	operation.DeferredConfig `yaml:",inline" mapstructure:",squash"`

	// Columns restricts the inserted values. Empty inserts every row value.
	Columns []string `yaml:"columns" mapstructure:"columns"`
	// IgnoreConflicts skips rows violating a unique constraint.
	IgnoreConflicts bool `yaml:"ignore_conflicts" mapstructure:"ignore_conflicts"`
	// ChunkSize bounds the rows per INSERT statement. Defaults to BatchSize.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size" validate:"gte=0"`
}

// BatchInsert writes rows to a table, one transaction per flushed batch.
type BatchInsert struct {
	*operation.Deferred
	db    *DB
	table string
	cfg   InsertConfig
}

// NewBatchInsert creates an operation inserting rows into table.
func NewBatchInsert(db *DB, table string, cfg InsertConfig) *BatchInsert {
	cfg.ApplyDefaults()
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > cfg.BatchSize {
		cfg.ChunkSize = cfg.BatchSize
	}
	b := &BatchInsert{db: db, table: table, cfg: cfg}
	b.Deferred = operation.NewDeferred("insert("+table+")", cfg.DeferredConfig, b.insert)
	return b
}

// Wrap decorates the batch handler, for instance with a retry policy.
func (b *BatchInsert) Wrap(fn func(operation.ProcessFunc) operation.ProcessFunc) *BatchInsert {
	b.SetProcess(fn(b.insert))
	return b
}

func (b *BatchInsert) Prepare(ctx context.Context) error {
	if b.db == nil {
		return errors.MissingField(b.Name() + ".db")
	}
	if b.table == "" {
		return errors.MissingField(b.Name() + ".table")
	}
	return b.Deferred.Prepare(ctx)
}

func (b *BatchInsert) insert(ctx context.Context, batch []*row.Row) error {
	records := make([]map[string]any, 0, len(batch))
	for _, r := range batch {
		if !r.IsNormal() {
			continue
		}
		records = append(records, b.record(r))
	}
	if len(records) == 0 {
		return nil
	}

	var inserted int64
	err := b.db.Transaction(ctx, func(tx *gorm.DB) error {
		tx = tx.Table(b.table)
		if b.cfg.IgnoreConflicts {
			tx = tx.Clauses(clause.OnConflict{DoNothing: true})
		}
		res := tx.CreateInBatches(records, b.cfg.ChunkSize)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return FromDatabase(err, b.table)
	}
	b.Stats().Add("inserted", inserted)
	return nil
}

func (b *BatchInsert) record(r *row.Row) map[string]any {
	if len(b.cfg.Columns) == 0 {
		return r.Values()
	}
	rec := make(map[string]any, len(b.cfg.Columns))
	for _, c := range b.cfg.Columns {
		rec[c] = r.Get(c)
	}
	return rec
}
