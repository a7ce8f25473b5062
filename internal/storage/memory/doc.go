// Package memory holds the in-memory record arena and capability index.
//
// Store is an append-only arena of file records. A record's slot index is
// its id; deletion sets a tombstone and the slot is never reused, so ids
// stay stable for blob names and snapshots.
//
// Index maps a six digit code to a record id through a fixed number of
// buckets, one entry per bucket. The bucket count is chosen once from the
// live-record limit and never changes; a code whose bucket is taken is
// rejected with ErrCollision.
//
// Neither type is safe for concurrent use. The storage engine guards both
// with one lock.
package memory
