// Package dedupe keeps a short-lived memory of push IDs the server has
// already accepted.
//
// The database is the source of truth for duplicate detection. The cache only
// lets repeat deliveries of the same push, which are common when a device
// retries, be answered without a write. A miss always falls through to the
// store.
//
// # Usage
//
//	cache := dedupe.New(5*time.Minute, 10000)
//	defer cache.Close()
//
//	if cache.Seen(id) {
//	    // already stored recently
//	}
//	cache.Remember(id)
package dedupe
