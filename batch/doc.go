// Package batch holds the small pieces shared by the long running stages of a
// matching run: bounded retry with exponential backoff and progress reporting.
package batch
