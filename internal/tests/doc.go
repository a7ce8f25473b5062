// Package tests holds end-to-end tests that run filebay-cli against a full
// in-process server stack.
package tests
