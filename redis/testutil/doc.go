// Package testutil provides an in-memory Redis component for tests.
//
//	srv := testutil.NewComponent()
//	if err := srv.Start(ctx); err != nil {
//	    t.Fatal(err)
//	}
//	defer srv.Stop(ctx)
//	dedup := redis.NewDedup(srv.Client(), cfg)
//
// Reset flushes all keys between cases; Server exposes miniredis for
// fast-forwarding TTLs.
package testutil
