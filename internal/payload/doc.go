// Package payload builds and extracts the compressed file archive carried
// inside setup executables.
//
// The archive is a gzip-compressed tar stream with deterministic entry
// order. Extraction refuses entries that would escape the destination root.
// SHA-512 helpers fingerprint payload bytes and installed files.
package payload
