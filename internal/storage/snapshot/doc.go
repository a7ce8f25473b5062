// Package snapshot provides snapshot management for FileBay.
//
// A snapshot is a full dump of the live records, written once on clean
// shutdown and read once at startup:
//
//	[version:1]
//	[id:8][deleted:1][size:8][expires_unix:8][code:4][name_len:4][name:name_len] ...
//
// Recovery Process:
//
//  1. Read the version byte; empty or missing file means no prior state
//  2. Refuse any other version before touching the in-memory state
//  3. Read records until end of stream, keeping what parsed before a bad tail
//  4. The storage engine re-appends them, so ids are reassigned in file order
package snapshot
