// Package reindex rebuilds the tag and metric associations of every entry in
// a tagstore.Store.
//
// Entries are walked in batches. Metadata for each batch is derived on a
// worker pool, then written back inside a single store transaction, so a
// failed batch leaves earlier batches committed and the failed one rolled
// back. Progress is reported to an io.Writer as the run advances.
package reindex
