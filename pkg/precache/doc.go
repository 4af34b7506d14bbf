// Package precache bulk-fetches the configured URL set during the install
// phase. A bounded worker pool distributes URLs across parallel fetches,
// each stored through a caller-supplied sink; transient fetch failures are
// retried with exponential backoff before counting against the batch.
//
// The fetcher returns partial results: every URL is attempted even when
// some fail, and the first hard failure is reported alongside the results.
package precache
