// Package embedding turns passage texts into vectors through an ai.Embedder.
//
// A Generator sends texts in sequential batches, paces consecutive batches
// with a rate limiter and retries transient provider failures with
// exponential backoff. Every failure it returns wraps core.ErrEmbeddingProvider.
package embedding
