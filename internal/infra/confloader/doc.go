// Package confloader loads FileBay configuration through koanf.
//
// Sources, highest priority first:
//
//  1. Environment variables (FILEBAY_ prefix, "__" between levels)
//  2. YAML configuration file
//  3. Values already set on the target struct (defaults)
//
// Watcher reports config file writes so the server can reload the
// settings that are safe to change at runtime.
package confloader
