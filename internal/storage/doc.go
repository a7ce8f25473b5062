// Package storage provides the storage engine for FileBay.
//
// The engine combines the record arena, the capability index, the single
// upload reservation, a blob backend and the snapshot manager.
//
// Architecture:
//
//   - Memory: record arena and fixed-bucket capability index
//   - Blob: file contents keyed by record id (local disk or S3)
//   - Snapshot: full dump of live records, flushed on shutdown
//
// Concurrency:
//
//   - One RWMutex guards arena, index and reservation as a unit
//   - Update serializes all mutation; View allows concurrent lookups
//   - Blob I/O is done by callers outside the lock
package storage
