// Package ingestion turns uploaded files into searchable passages.
//
// The Orchestrator validates an upload, records the document as processing
// and queues the content for a worker pool; Upload does not wait for a free
// worker. Each job runs
//
//	extract -> chunk -> embed -> upsert -> mark done
//
// under its own timeout. A failing job removes any passages it already
// stored before marking the document failed, so a document is only
// searchable once it is done. Upload returns a Handle that callers may wait
// on; background failures are logged and recorded, never returned to the
// uploader.
package ingestion
