// Package database connects rowflow jobs to SQL databases through GORM.
//
// Open returns a pooled connection, retried with backoff while the database
// comes up. Component wraps it for the job's component registry.
//
// BatchInsert is a deferred operation writing each flushed batch in one
// transaction:
//
//	db, err := database.Open(ctx, database.Config{Enabled: true, DSN: "jobs.db"}, nil)
//	insert := database.NewBatchInsert(db, "orders", database.InsertConfig{
//	    DeferredConfig: operation.DeferredConfig{BatchSize: 500},
//	    IgnoreConflicts: true,
//	})
//
// QuerySource reads a query result as the input of a process.
package database
