// Package row defines the unit of data moved through a process and its
// lifecycle state machine.
//
// A row is Normal while it walks its chain and ends either Finished (emitted)
// or Removed (dropped). Terminal states never change. Deferred operations park
// rows with DeferWait and release them with DeferDone; the only legal cycle is
// None, Wait, Done, None and every transition is a compare-and-swap.
package row
