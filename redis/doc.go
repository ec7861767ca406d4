// Package redis provides a Redis client component and a de-duplication
// operation for rowflow jobs.
//
// Dedup is a deferred operation: each flushed batch claims its keys with
// one pipelined SETNX, and rows whose key is already claimed are removed.
//
//	dedup := redis.NewDedup(client, redis.DedupConfig{
//	    Fields: []string{"order_id"},
//	    TTL:    24 * time.Hour,
//	})
//
// Component wraps Client for the job's component registry.
package redis
