// Package retention keeps received pushes for a bounded number of days.
//
// Store is the only component callers use to record pushes. It guarantees at
// most one record per push ID, reports newly stored pushes to a single
// notify.Delegate, lists pushes newest first and prunes records older than
// the storage window.
//
// # Storage window
//
// The window is persisted under the "push_storage_days" setting. The default
// is two days and two is also the floor: a persisted value below it is
// ignored. Prune computes its cutoff from the start of the current calendar
// day:
//
//	cutoff = startOfDay(now) - windowDays days
//
// and deletes every push received strictly before the cutoff. Pruning is
// opportunistic; nothing in this package schedules it.
//
// # Errors
//
// Store never returns persistence errors. They are logged with the failing
// operation and the caller sees false, zero or an empty slice.
package retention
