// Package language holds the static registry of supported runtimes.
//
// Each supported language is described by a Spec: the fixed source
// filename, the compile and run argument vectors, the timeout class,
// the container image, and the resource-capping policy. The registry
// is built once at startup and read-only afterwards; an unsupported
// identifier fails fast before any workspace is created.
package language
