package testutil

import (
	"github.com/kbukum/rowflow/row"
)

// Rows creates n rows with an "n" value counting from 0 and matching Seq.
func Rows(n int) []*row.Row {
	out := make([]*row.Row, n)
	for i := range out {
		out[i] = row.New(map[string]any{"n": i})
		out[i].Seq = int64(i)
	}
	return out
}

// RowsOf creates one row per values map.
func RowsOf(values ...map[string]any) []*row.Row {
	out := make([]*row.Row, len(values))
	for i, v := range values {
		out[i] = row.New(v)
		out[i].Seq = int64(i)
	}
	return out
}

// Ns returns the "n" value of every row.
func Ns(rows []*row.Row) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if n, ok := r.Get("n").(int); ok {
			out = append(out, n)
		}
	}
	return out
}
