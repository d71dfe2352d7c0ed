// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable attempts
// and delays. It is used for Kubernetes API list calls and report uploads,
// which may fail transiently. Errors wrapped with [Fatal] stop the retry
// loop immediately.
package retry
