// Package source provides input row sources for an engine.
//
// Slice replays a fixed set of values, CSV reads one row per record of a
// delimited file, and Heartbeat interleaves heartbeat rows into another
// source so time based flushes fire while input is slow.
//
//	src := source.NewCSV("orders", source.CSVConfig{Path: "orders.csv"})
//	e := engine.New("load", cfg, src, ops)
package source
