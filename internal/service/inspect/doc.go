// Package inspect prints the trailer contents of a setup executable: the
// embedded application metadata, payload digest status and file listing,
// as text or YAML.
package inspect
