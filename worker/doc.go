// Package worker runs operation chains over rows taken from a row queue.
//
// Each worker loops over the queue and, per row, applies the next operation
// until the chain ends or a deferred operation parks the row. Rows reaching
// the end are flagged Finished through the host; rows resumed after a batch
// flush continue at the operation after the one that parked them.
package worker
