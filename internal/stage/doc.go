// Package stage materializes manifest file rules into a staging directory.
//
// The Stager resolves each rule's source (file, directory, or glob), copies
// the matched files under the staging root while preserving the structure
// below the rule's source root, and records an xxhash64 digest per file.
// Unchanged files are detected by digest and skipped, so repeated runs over
// the same source tree rewrite nothing.
package stage
