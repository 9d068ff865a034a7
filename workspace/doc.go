// Package workspace manages the ephemeral directories jobs execute in.
//
// Every job gets an exclusively owned directory holding its source
// file, created on acquire and removed on release. Release is
// idempotent and retried with bounded backoff: file handles held by
// just-killed children can linger briefly. A failed cleanup is logged,
// never surfaced into the job result.
package workspace
