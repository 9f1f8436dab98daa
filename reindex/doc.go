// Package reindex re-embeds the passages of finished documents, typically
// after switching embedding models.
//
// Passage text is read back from a source vector index, embedded again with
// the configured generator and written to a target index, which may be the
// same collection (same dimensions) or a new one. Each document's collection
// is updated once its passages are written, so an interrupted run can be
// resumed and skips documents already moved.
package reindex
