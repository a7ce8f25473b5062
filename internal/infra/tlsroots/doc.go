// Package tlsroots builds trust pools for outbound TLS, such as an S3
// endpoint signed by a private CA.
package tlsroots
