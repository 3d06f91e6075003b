// Package ingest resolves a scan target into an ordered set of files.
//
// A target is either a remote repository URL, which is shallow-cloned into
// a temporary directory, or a local directory scanned in place. Files are
// then filtered:
//   - ignored directories (.git, node_modules, vendor, ...) are pruned
//   - unsupported extensions, binaries and oversized files are skipped
//   - exclude patterns always win over include patterns
//   - an explicit file list restricts the set further
//
// The resulting slice is sorted by relative path and contains no duplicates.
// Callers must invoke Source.Cleanup when done to remove temporary clones.
package ingest
