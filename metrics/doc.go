// Package metrics exposes Prometheus collectors for ingestion, embedding and
// search activity. A Metrics value satisfies the observer interfaces of the
// embedding, ingestion and search packages.
package metrics
