// Package scanner owns the scan lifecycle. A Controller allocates scans,
// drives each one through ingestion, indexing, detection and aggregation,
// and serves status and results to concurrent readers.
//
// A scan moves pending -> in_progress -> completed | failed. Every file is
// indexed before detection begins so that retrieval sees the whole
// repository. Detection fans out over files with a bounded worker pool;
// per-file outcomes are applied by a single goroutine, so scanned_files and
// the issue set never move backwards while a scan is being polled.
//
// Cancel stops dispatch of new work. Capability calls already in flight
// drain, and the scan ends failed with its partial issues kept.
package scanner
