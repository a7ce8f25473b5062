// Package service coordinates uploads and expiry.
//
// UploadService runs the apply, upload, finalize (or abandon) sequence
// against the single upload reservation and serves downloads by code.
// Sweeper evicts expired records and reclaims stalled reservations on a
// fixed interval.
//
// Both take a Repository (the storage engine) and translate storage and
// blob failures into domain errors.
package service
