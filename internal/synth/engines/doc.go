// Package engines contains speech backends for the synth package.
// Currently supports Amazon Polly.
package engines
