// Package tasks orchestrates room archive operations with real-time progress reporting.
//
// # Core Operations
//
//  1. [ArchiveEngine.History] : Load one room and its event log as a [formatter.History]
//  2. [ArchiveEngine.BulkExport] : Export many rooms concurrently
//     - Reads each room from the store on a single rate-limited producer
//     - Renders and writes files on a bounded worker pool
//     - Records per-room failures without aborting the run
//     - Writes export_manifest.json summarizing every result
//
// # Progress Reporting
//
// Operations accept an optional ProgressUpdate channel. Updates use select with default so
// reporting never blocks the export.
package tasks
