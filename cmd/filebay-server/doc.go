// Package main provides the entry point for filebay-server.
//
// filebay-server is an ephemeral file drop: a client reserves the single
// upload slot, streams a file in chunks and receives a six digit code.
// Anyone holding the code can download the file until it expires.
//
// Usage:
//
//	filebay-server --config /etc/filebay/filebay.yaml
//
// Every key can also be set through FILEBAY_ environment variables, with
// "__" between levels (FILEBAY_REGISTRY__MAX_LIVE=100).
package main
