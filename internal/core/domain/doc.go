// Package domain defines filebay's core types: capability codes, file
// records, the upload reservation and the DomainError codes returned by
// every layer above storage.
package domain
