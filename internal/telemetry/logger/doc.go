// Package logger builds the log/slog loggers FileBay components use.
//
// Every logger from New shares one slog.LevelVar, so SetLevel (driven by a
// config reload or the admin socket) applies to all of them at once, and
// every handler masks upload tokens, retrieval codes and credentials.
// Request-scoped loggers carrying the request ID travel in the context.
package logger
